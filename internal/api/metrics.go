package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/lockgate/internal/coordinator"
)

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Locks         LockMetrics    `json:"locks"`
	Gateway       GatewayMetrics `json:"gateway"`
	LastCycle     *CycleMetrics  `json:"last_cycle,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// LockMetrics summarises the last known lock states.
type LockMetrics struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	Locked     int `json:"locked"`
	LowBattery int `json:"low_battery"`
}

// GatewayMetrics reports gateway reachability.
type GatewayMetrics struct {
	ID            string             `json:"id"`
	State         coordinator.Health `json:"state"`
	Synchronizing bool               `json:"synchronizing"`
}

// CycleMetrics summarises the most recent refresh cycle.
type CycleMetrics struct {
	ID         string                      `json:"id"`
	Started    string                      `json:"started"`
	DurationMS int64                       `json:"duration_ms"`
	Probe      coordinator.ProbeOutcome    `json:"probe"`
	Outcomes   map[coordinator.Outcome]int `json:"outcomes"`
}

// lowBatteryThreshold is the percentage at or below which a lock counts as
// low on battery.
const lowBatteryThreshold = 20

// handleMetrics returns runtime, lock and cycle statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	for _, d := range s.ctrl.Devices() {
		snap := d.Snapshot()
		metrics.Locks.Total++
		if !snap.Available {
			continue
		}
		metrics.Locks.Available++
		if snap.Locked {
			metrics.Locks.Locked++
		}
		if snap.BatteryLevel <= lowBatteryThreshold {
			metrics.Locks.LowBattery++
		}
	}

	health := s.ctrl.Health()
	metrics.Gateway = GatewayMetrics{
		ID:            health.GatewayID,
		State:         health.State,
		Synchronizing: health.Synchronizing,
	}

	if report, ok := s.ctrl.LastCycle(); ok {
		outcomes := make(map[coordinator.Outcome]int)
		for _, d := range report.Devices {
			outcomes[d.Outcome]++
		}
		metrics.LastCycle = &CycleMetrics{
			ID:         report.ID,
			Started:    report.Started.UTC().Format(time.RFC3339),
			DurationMS: report.Duration.Milliseconds(),
			Probe:      report.Probe,
			Outcomes:   outcomes,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
