package coordinator

import (
	"time"

	"github.com/joshp123/kumocloud/internal/kumo"
)

const staleCommandTTL = 5 * time.Minute

type cacheKey struct {
	serial  string
	command string
}

type cachedCommand struct {
	issuedAt time.Time
	value    any
}

// commandCache holds recently sent commands so polled state can be
// overlaid with values the cloud has not reported back yet. Entries
// are culled once the device's updatedAt catches up to the send time,
// or after staleCommandTTL as a backstop.
type commandCache struct {
	entries map[cacheKey]cachedCommand
	now     func() time.Time
}

func newCommandCache() *commandCache {
	return &commandCache{
		entries: make(map[cacheKey]cachedCommand),
		now:     time.Now,
	}
}

func (c *commandCache) cache(serial, command string, value any) {
	c.entries[cacheKey{serial: serial, command: command}] = cachedCommand{
		issuedAt: c.now(),
		value:    value,
	}
}

// cull drops entries for serial that were issued at or before the
// device's reported update time. updatedAt may be nil when the cloud
// omits the timestamp, in which case nothing is culled.
func (c *commandCache) cull(serial string, updatedAt *time.Time) {
	if updatedAt == nil {
		return
	}
	for key, entry := range c.entries {
		if key.serial != serial {
			continue
		}
		if !entry.issuedAt.After(*updatedAt) {
			delete(c.entries, key)
		}
	}
}

// cleanupStale removes entries older than the TTL regardless of what
// the device has reported. Guards against devices that never bump
// their update time.
func (c *commandCache) cleanupStale() {
	cutoff := c.now().Add(-staleCommandTTL)
	for key, entry := range c.entries {
		if entry.issuedAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}

func (c *commandCache) clear(serial string) {
	for key := range c.entries {
		if key.serial == serial {
			delete(c.entries, key)
		}
	}
}

func (c *commandCache) clearAll() {
	c.entries = make(map[cacheKey]cachedCommand)
}

func (c *commandCache) count() int {
	return len(c.entries)
}

// overlay applies every cached command for serial onto the detail.
func (c *commandCache) overlay(serial string, detail *kumo.DeviceDetail) {
	for key, entry := range c.entries {
		if key.serial != serial {
			continue
		}
		applyCommand(detail, key.command, entry.value)
	}
}

// applyCommand maps a command name onto the detail field it controls.
// Values arrive as the any the caller sent, or as float64 when they
// round-tripped through JSON.
func applyCommand(detail *kumo.DeviceDetail, command string, value any) {
	switch command {
	case "power":
		if v, ok := asInt(value); ok {
			detail.Power = &v
		}
	case "operationMode":
		if v, ok := value.(string); ok {
			detail.OperationMode = &v
		}
	case "fanSpeed":
		if v, ok := value.(string); ok {
			detail.FanSpeed = &v
		}
	case "airDirection":
		if v, ok := value.(string); ok {
			detail.AirDirection = &v
		}
	case "spCool":
		if v, ok := asFloat(value); ok {
			detail.SpCool = &v
		}
	case "spHeat":
		if v, ok := asFloat(value); ok {
			detail.SpHeat = &v
		}
	case "humidity":
		if v, ok := asInt(value); ok {
			detail.Humidity = &v
		}
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
