package main

import (
	"time"

	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/lockgate/internal/lock"
)

// measurementGatewayHealth records reachability transitions.
const measurementGatewayHealth = "gateway_health"

// pointWriter is the part of *influxdb.Client the sink uses.
type pointWriter interface {
	WriteCycle(p influxdb.CyclePoint)
	WriteDeviceRefresh(p influxdb.DevicePoint)
	WriteLockState(lockID string, locked bool, batteryLevel int, at time.Time)
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// influxSink writes cycle reports and state changes to InfluxDB. It is both
// a coordinator.MetricsSink and a coordinator.Listener.
type influxSink struct {
	w pointWriter
}

func newInfluxSink(w pointWriter) *influxSink {
	return &influxSink{w: w}
}

// RecordCycle writes one cycle point and one point per device.
func (s *influxSink) RecordCycle(report coordinator.CycleReport) {
	refreshed := report.Count(coordinator.OutcomeRefreshed)
	s.w.WriteCycle(influxdb.CyclePoint{
		GatewayID: report.GatewayID,
		CycleID:   report.ID,
		Probe:     string(report.Probe),
		Started:   report.Started,
		Duration:  report.Duration,
		Refreshed: refreshed,
		Failed:    len(report.Devices) - refreshed,
	})

	for _, d := range report.Devices {
		s.w.WriteDeviceRefresh(influxdb.DevicePoint{
			GatewayID: report.GatewayID,
			LockID:    d.LockID,
			Outcome:   string(d.Outcome),
			Attempts:  d.Attempts,
			Code:      d.Code,
			Syncs:     d.Syncs,
			Duration:  d.Duration,
			At:        report.Started,
		})
	}
}

// LockStateChanged writes the new state of an available lock.
func (s *influxSink) LockStateChanged(snap lock.Snapshot) {
	if !snap.Available {
		return
	}
	s.w.WriteLockState(snap.ID, snap.Locked, snap.BatteryLevel, snap.UpdatedAt)
}

// GatewayHealthChanged writes a reachability transition.
func (s *influxSink) GatewayHealthChanged(status coordinator.HealthStatus) {
	s.w.WritePointWithTime(measurementGatewayHealth,
		map[string]string{"gateway_id": status.GatewayID},
		map[string]interface{}{
			"reachable":     status.State == coordinator.Reachable,
			"synchronizing": status.Synchronizing,
		},
		status.Since,
	)
}
