package lock

import (
	"strings"

	"github.com/nerrad567/lockgate/internal/gateway"
)

// Battery voltage range reported by the locks, in millivolts.
const (
	batteryEmptyMillivolts = 6200
	batteryFullMillivolts  = 8000
)

// parsedStatus is the state extracted from a locker_status response.
// Fields the gateway did not report are flagged as unknown.
type parsedStatus struct {
	locked       bool
	lockedKnown  bool
	battery      int
	batteryKnown bool
}

// parseStatus reads the "state" and "battery" fields of a status body.
func parseStatus(resp gateway.Response) parsedStatus {
	var ps parsedStatus

	switch state := strings.ToLower(strings.TrimSpace(resp.String("state"))); {
	case state == "":
	case state == "locked" || strings.Contains(state, "closed"):
		ps.locked, ps.lockedKnown = true, true
	case state == "unlocked" || strings.Contains(state, "open"):
		ps.locked, ps.lockedKnown = false, true
	}

	if raw, ok := resp.Float("battery"); ok {
		ps.battery, ps.batteryKnown = batteryPercent(raw), true
	}
	return ps
}

// batteryPercent normalises a battery reading. Values above 100 are
// millivolts and are mapped linearly onto the lock's voltage range.
func batteryPercent(raw float64) int {
	if raw > 100 {
		raw = (raw - batteryEmptyMillivolts) * 100 / (batteryFullMillivolts - batteryEmptyMillivolts)
	}
	switch {
	case raw < 0:
		return 0
	case raw > 100:
		return 100
	}
	return int(raw + 0.5)
}
