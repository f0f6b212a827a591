package coordinator

import (
	"context"
	"fmt"

	"github.com/joshp123/kumocloud/internal/kumo"
)

// Device is a serial-scoped view over the coordinator, the handle the
// outer surfaces (HTTP, MQTT) use to read state and send commands.
type Device struct {
	coord  *Coordinator
	serial string
}

func (c *Coordinator) Device(serial string) *Device {
	return &Device{coord: c, serial: serial}
}

// SendCommand is a serial-addressed convenience over Device.
func (c *Coordinator) SendCommand(ctx context.Context, serial string, commands map[string]any) error {
	return c.Device(serial).SendCommand(ctx, commands)
}

func (d *Device) Serial() string {
	return d.serial
}

// Name returns the name of the zone the device sits in, falling back
// to the serial when no zone claims it.
func (d *Device) Name() string {
	snap := d.coord.Snapshot()
	if snap == nil {
		return d.serial
	}
	for _, zone := range snap.Zones {
		if zone.Adapter != nil && zone.Adapter.DeviceSerial == d.serial && zone.Name != "" {
			return zone.Name
		}
	}
	return d.serial
}

// Available reports whether the cloud currently considers the device
// connected. When the device detail omits the flag, the zone adapter's
// embedded flag decides; unknown in both counts as unavailable.
func (d *Device) Available() bool {
	snap := d.coord.Snapshot()
	if snap == nil {
		return false
	}
	if detail, ok := snap.Devices[d.serial]; ok && detail.Connected != nil {
		return *detail.Connected
	}
	for _, zone := range snap.Zones {
		if zone.Adapter != nil && zone.Adapter.DeviceSerial == d.serial && zone.Adapter.Connected != nil {
			return *zone.Adapter.Connected
		}
	}
	return false
}

func (d *Device) Detail() (kumo.DeviceDetail, bool) {
	snap := d.coord.Snapshot()
	if snap == nil {
		return kumo.DeviceDetail{}, false
	}
	detail, ok := snap.Devices[d.serial]
	return detail, ok
}

func (d *Device) Profiles() []kumo.DeviceProfile {
	snap := d.coord.Snapshot()
	if snap == nil {
		return nil
	}
	return snap.Profiles[d.serial]
}

// SendCommand pushes commands to the cloud, caches them so they stay
// visible until the cloud reports them back, waits out the settle
// delay, and opportunistically refreshes the device. A failed refresh
// is logged and swallowed; the next scheduled poll will catch up.
func (d *Device) SendCommand(ctx context.Context, commands map[string]any) error {
	if len(commands) == 0 {
		return fmt.Errorf("no commands given")
	}

	if _, err := d.coord.api.SendCommand(ctx, d.serial, commands); err != nil {
		commandsFailed.Inc()
		return fmt.Errorf("send command to %s: %w", d.serial, err)
	}
	commandsSent.Add(float64(len(commands)))

	for command, value := range commands {
		d.coord.cacheCommand(d.serial, command, value)
	}

	if err := d.coord.sleep(ctx, d.coord.cfg.Settle); err != nil {
		return err
	}
	if err := d.coord.RefreshDevice(ctx, d.serial); err != nil {
		d.coord.log.Warn().Err(err).Str("serial", d.serial).Msg("post-command refresh failed")
	}
	return nil
}
