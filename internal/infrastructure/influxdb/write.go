package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCycle     = "refresh_cycle"
	MeasurementDevice    = "lock_refresh"
	MeasurementLockState = "lock_state"
)

// CyclePoint summarises one refresh cycle.
type CyclePoint struct {
	GatewayID string
	CycleID   string
	Probe     string
	Started   time.Time
	Duration  time.Duration
	Refreshed int
	Failed    int
}

// DevicePoint records how one lock fared within a cycle.
type DevicePoint struct {
	GatewayID string
	LockID    string
	Outcome   string
	Attempts  int
	Code      int
	Syncs     int
	Duration  time.Duration
	At        time.Time
}

// WriteCycle writes one refresh_cycle point. The cycle id is a field, not a
// tag, to keep series cardinality bounded.
func (c *Client) WriteCycle(p CyclePoint) {
	c.WritePointWithTime(MeasurementCycle,
		map[string]string{
			"gateway_id": p.GatewayID,
			"probe":      p.Probe,
		},
		map[string]interface{}{
			"cycle_id":    p.CycleID,
			"duration_ms": p.Duration.Milliseconds(),
			"refreshed":   p.Refreshed,
			"failed":      p.Failed,
		},
		p.Started,
	)
}

// WriteDeviceRefresh writes one lock_refresh point.
func (c *Client) WriteDeviceRefresh(p DevicePoint) {
	fields := map[string]interface{}{
		"attempts":    p.Attempts,
		"duration_ms": p.Duration.Milliseconds(),
	}
	if p.Code != 0 {
		fields["code"] = p.Code
	}
	if p.Syncs > 0 {
		fields["syncs"] = p.Syncs
	}

	c.WritePointWithTime(MeasurementDevice,
		map[string]string{
			"gateway_id": p.GatewayID,
			"lock_id":    p.LockID,
			"outcome":    p.Outcome,
		},
		fields,
		p.At,
	)
}

// WriteLockState writes the observed bolt position and battery of a lock.
func (c *Client) WriteLockState(lockID string, locked bool, batteryLevel int, at time.Time) {
	c.WritePointWithTime(MeasurementLockState,
		map[string]string{"lock_id": lockID},
		map[string]interface{}{
			"locked":        locked,
			"battery_level": batteryLevel,
		},
		at,
	)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point. A zero timestamp means now.
// Writes are dropped while the client is not connected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
