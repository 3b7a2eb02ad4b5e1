package main

import (
	"context"
	"time"

	"github.com/user/blue-att/logger"
	"github.com/user/blue-att/wire/att"
	"github.com/user/blue-att/wire/gatt"
)

// findBatteryLevel returns the value handle of the first Battery Level
// characteristic in infos.
func findBatteryLevel(infos []*gatt.ServiceHandleInfo) (att.Handle, bool) {
	for _, info := range infos {
		if h, err := gatt.FindCharacteristicHandle(info, gatt.UUIDBatteryLevel); err == nil {
			return h, true
		}
	}
	return att.NullHandle, false
}

// nextBatteryLevel drains the simulated battery by one percent and
// recharges it once empty.
func nextBatteryLevel(level uint8) uint8 {
	if level == 0 || level > 100 {
		return 100
	}
	return level - 1
}

// runBattery publishes a new battery level every interval until ctx ends.
func (d *daemon) runBattery(ctx context.Context, h att.Handle, interval time.Duration) {
	level := uint8(100)
	if a, ok := d.db.Get(h); ok && len(a.Value) == 1 {
		level = a.Value[0]
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		level = nextBatteryLevel(level)
		n, err := d.publish(ctx, gatt.UUIDBatteryLevel, h, []byte{level})
		if err != nil {
			logger.Warn(d.prefix, "❌ battery update: %v", err)
		}
		logger.Trace(d.prefix, "🔋 battery %d%% sent to %d connection(s)", level, n)
	}
}
