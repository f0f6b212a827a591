// Package coordinator polls the Kumo Cloud API on a fixed interval,
// merges recently sent commands over the polled state, and publishes
// immutable snapshots to subscribers.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/kumocloud/internal/kumo"
)

// API is the subset of the cloud client the coordinator drives.
type API interface {
	Zones(ctx context.Context, siteID string) ([]kumo.Zone, error)
	DeviceDetails(ctx context.Context, serial string) (kumo.DeviceDetail, error)
	DeviceProfile(ctx context.Context, serial string) ([]kumo.DeviceProfile, error)
	SendCommand(ctx context.Context, serial string, commands map[string]any) (map[string]any, error)
	RefreshAccessToken(ctx context.Context) error
}

// Snapshot is one complete, immutable view of the site. A new snapshot
// replaces the old one wholesale; consumers never see partial state.
type Snapshot struct {
	Zones     []kumo.Zone
	Devices   map[string]kumo.DeviceDetail
	Profiles  map[string][]kumo.DeviceProfile
	ZoneIndex map[string]kumo.Zone
	Taken     time.Time
}

// Config carries the knobs the coordinator needs; validation happens
// in the config package before it gets here.
type Config struct {
	SiteID   string
	Interval time.Duration
	Settle   time.Duration
}

type Coordinator struct {
	api    API
	siteID string
	cfg    Config
	log    zerolog.Logger

	mu       sync.Mutex
	snapshot *Snapshot
	cache    *commandCache
	subs     map[int]func(*Snapshot)
	nextSub  int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(api API, cfg Config, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		api:    api,
		siteID: cfg.SiteID,
		cfg:    cfg,
		log:    logger.With().Str("component", "coordinator").Logger(),
		cache:  newCommandCache(),
		subs:   make(map[int]func(*Snapshot)),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Run polls until ctx is cancelled. Individual poll failures are
// logged; the previous snapshot stays published until a poll succeeds.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.RefreshAll(ctx); err != nil {
				c.log.Error().Err(err).Msg("poll failed")
			}
		}
	}
}

// RefreshAll performs one full poll cycle. On an auth failure it
// refreshes the access token and retries the cycle once.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	var authRetried bool
	for {
		err := c.refreshAll(ctx)
		if err == nil {
			return nil
		}
		if kumo.IsAuth(err) && !authRetried {
			authRetried = true
			rerr := c.api.RefreshAccessToken(ctx)
			if rerr == nil {
				c.log.Info().Msg("access token refreshed, retrying poll")
				continue
			}
			pollFailures.Inc()
			return fmt.Errorf("refresh token after auth failure: %w", rerr)
		}
		pollFailures.Inc()
		return err
	}
}

func (c *Coordinator) refreshAll(ctx context.Context) error {
	started := c.now()

	zones, err := c.api.Zones(ctx, c.siteID)
	if err != nil {
		return fmt.Errorf("fetch zones: %w", err)
	}

	serials := make([]string, 0, len(zones))
	for _, zone := range zones {
		if zone.Adapter != nil && zone.Adapter.DeviceSerial != "" {
			serials = append(serials, zone.Adapter.DeviceSerial)
		}
	}

	details := make([]kumo.DeviceDetail, len(serials))
	profiles := make([][]kumo.DeviceProfile, len(serials))

	g, gctx := errgroup.WithContext(ctx)
	for i, serial := range serials {
		g.Go(func() error {
			detail, err := c.api.DeviceDetails(gctx, serial)
			if err != nil {
				return fmt.Errorf("fetch device %s: %w", serial, err)
			}
			details[i] = detail
			return nil
		})
		g.Go(func() error {
			profile, err := c.api.DeviceProfile(gctx, serial)
			if err != nil {
				return fmt.Errorf("fetch profile %s: %w", serial, err)
			}
			profiles[i] = profile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	prev := c.snapshot

	next := &Snapshot{
		Zones:     zones,
		Devices:   make(map[string]kumo.DeviceDetail, len(serials)),
		Profiles:  make(map[string][]kumo.DeviceProfile, len(serials)),
		ZoneIndex: make(map[string]kumo.Zone, len(zones)),
		Taken:     c.now(),
	}

	for i, serial := range serials {
		detail := details[i]
		// Only cull against updatedAt once we have seen the device
		// before; a first poll must not discard in-flight commands.
		if prev != nil {
			if _, seen := prev.Devices[serial]; seen {
				c.cache.cull(serial, detail.UpdatedAt)
			}
		}
		c.cache.overlay(serial, &detail)
		next.Devices[serial] = detail
		next.Profiles[serial] = profiles[i]
	}
	c.cache.cleanupStale()

	for i := range next.Zones {
		syncZoneAdapter(&next.Zones[i], next.Devices)
		next.ZoneIndex[next.Zones[i].ID] = next.Zones[i]
	}

	c.snapshot = next
	cachedCommands.Set(float64(c.cache.count()))
	devicesTracked.Set(float64(len(next.Devices)))
	subs := c.subscribersLocked()
	c.mu.Unlock()

	pollsTotal.Inc()
	pollDuration.Observe(c.now().Sub(started).Seconds())
	c.notify(subs, next)
	return nil
}

// RefreshDevice re-fetches a single device and patches it into a new
// snapshot. Used opportunistically after command sends; callers on
// that path log and ignore the error.
func (c *Coordinator) RefreshDevice(ctx context.Context, serial string) error {
	detail, err := c.api.DeviceDetails(ctx, serial)
	if err != nil {
		deviceRefreshFailures.Inc()
		return fmt.Errorf("refresh device %s: %w", serial, err)
	}

	c.mu.Lock()
	prev := c.snapshot
	if prev == nil {
		c.mu.Unlock()
		return fmt.Errorf("refresh device %s: no snapshot yet", serial)
	}

	if _, seen := prev.Devices[serial]; seen {
		c.cache.cull(serial, detail.UpdatedAt)
	}
	c.cache.overlay(serial, &detail)

	next := &Snapshot{
		Zones:     append([]kumo.Zone(nil), prev.Zones...),
		Devices:   make(map[string]kumo.DeviceDetail, len(prev.Devices)+1),
		Profiles:  prev.Profiles,
		ZoneIndex: make(map[string]kumo.Zone, len(prev.ZoneIndex)),
		Taken:     c.now(),
	}
	for k, v := range prev.Devices {
		next.Devices[k] = v
	}
	next.Devices[serial] = detail

	for i := range next.Zones {
		syncZoneAdapter(&next.Zones[i], next.Devices)
		next.ZoneIndex[next.Zones[i].ID] = next.Zones[i]
	}

	c.snapshot = next
	cachedCommands.Set(float64(c.cache.count()))
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.notify(subs, next)
	return nil
}

// syncZoneAdapter copies the polled detail for the zone's device onto
// the zone's embedded adapter so both views agree after overlay. Fields
// the detail omits keep the adapter's own value; the adapter is the
// fallback source when the detail is sparse, notably for connected.
func syncZoneAdapter(zone *kumo.Zone, devices map[string]kumo.DeviceDetail) {
	if zone.Adapter == nil {
		return
	}
	detail, ok := devices[zone.Adapter.DeviceSerial]
	if !ok {
		return
	}
	adapter := *zone.Adapter
	if detail.RoomTemp != nil {
		adapter.RoomTemp = detail.RoomTemp
	}
	if detail.OperationMode != nil {
		adapter.OperationMode = detail.OperationMode
	}
	if detail.Power != nil {
		adapter.Power = detail.Power
	}
	if detail.FanSpeed != nil {
		adapter.FanSpeed = detail.FanSpeed
	}
	if detail.AirDirection != nil {
		adapter.AirDirection = detail.AirDirection
	}
	if detail.SpCool != nil {
		adapter.SpCool = detail.SpCool
	}
	if detail.SpHeat != nil {
		adapter.SpHeat = detail.SpHeat
	}
	if detail.Humidity != nil {
		adapter.Humidity = detail.Humidity
	}
	if detail.Connected != nil {
		adapter.Connected = detail.Connected
	}
	zone.Adapter = &adapter
}

// Snapshot returns the latest published snapshot, or nil before the
// first successful poll.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Subscribe registers fn to be called with every new snapshot. The
// returned func cancels the subscription.
func (c *Coordinator) Subscribe(fn func(*Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) subscribersLocked() []func(*Snapshot) {
	out := make([]func(*Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func (c *Coordinator) notify(subs []func(*Snapshot), snap *Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Coordinator) cacheCommand(serial, command string, value any) {
	c.mu.Lock()
	c.cache.cache(serial, command, value)
	c.cache.cleanupStale()
	cachedCommands.Set(float64(c.cache.count()))
	c.mu.Unlock()
}

// ClearCache drops cached commands for one device.
func (c *Coordinator) ClearCache(serial string) {
	c.mu.Lock()
	c.cache.clear(serial)
	cachedCommands.Set(float64(c.cache.count()))
	c.mu.Unlock()
}

// ClearAllCaches drops every cached command.
func (c *Coordinator) ClearAllCaches() {
	c.mu.Lock()
	c.cache.clearAll()
	cachedCommands.Set(0)
	c.mu.Unlock()
}

// CachedCommandCount reports how many command overrides are pending.
func (c *Coordinator) CachedCommandCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.count()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
