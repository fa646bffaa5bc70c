package coordinator

import (
	"time"

	"github.com/nerrad567/lockgate/internal/lock"
)

// ProbeOutcome is the result of a cycle's reachability probe.
type ProbeOutcome string

// Probe outcomes.
const (
	ProbeOK            ProbeOutcome = "ok"
	ProbeFailed        ProbeOutcome = "failed"
	ProbeSynchronizing ProbeOutcome = "synchronizing"
)

// Outcome is how one device fared in a cycle.
type Outcome string

// Device outcomes.
const (
	OutcomeRefreshed    Outcome = "refreshed"
	OutcomeUnreachable  Outcome = "unreachable"
	OutcomeBusy         Outcome = "busy"
	OutcomeOutOfRange   Outcome = "out_of_range"
	OutcomeSyncFailed   Outcome = "sync_failed"
	OutcomeClockInvalid Outcome = "clock_invalid"
	OutcomeError        Outcome = "error"
	OutcomeCancelled    Outcome = "cancelled"
)

// DeviceResult records one device's refresh within a cycle.
type DeviceResult struct {
	LockID   string  `json:"lock_id"`
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts"`

	// Code is the last gateway error code, or 0.
	Code int `json:"code,omitempty"`

	// Syncs counts clock resynchronisations triggered by code 38.
	Syncs int `json:"syncs,omitempty"`

	Duration time.Duration `json:"duration"`
}

// CycleReport summarises one refresh cycle.
type CycleReport struct {
	ID        string        `json:"id"`
	GatewayID string        `json:"gateway_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`

	Probe       ProbeOutcome `json:"probe"`
	ProbeReason string       `json:"probe_reason,omitempty"`

	Devices []DeviceResult `json:"devices,omitempty"`
}

// Count returns how many devices ended with outcome o.
func (r CycleReport) Count(o Outcome) int {
	n := 0
	for _, d := range r.Devices {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

// Listener is notified of state changes observed by the coordinator.
// Calls are made synchronously from the refresh goroutine; implementations
// must not block.
type Listener interface {
	LockStateChanged(snap lock.Snapshot)
	GatewayHealthChanged(status HealthStatus)
}

// MetricsSink receives a report after every cycle.
type MetricsSink interface {
	RecordCycle(report CycleReport)
}
