package lock

import (
	"testing"

	"github.com/nerrad567/lockgate/internal/gateway"
)

func TestParseStatus_State(t *testing.T) {
	tests := []struct {
		state  string
		locked bool
		known  bool
	}{
		{"Door closed", true, true},
		{"locked", true, true},
		{"CLOSED", true, true},
		{"Door open", false, true},
		{"unlocked", false, true},
		{"opened", false, true},
		{"", false, false},
		{"jammed", false, false},
	}

	for _, tt := range tests {
		ps := parseStatus(gateway.Response{"state": tt.state})
		if ps.lockedKnown != tt.known || (tt.known && ps.locked != tt.locked) {
			t.Errorf("state %q: locked=%v known=%v, want locked=%v known=%v",
				tt.state, ps.locked, ps.lockedKnown, tt.locked, tt.known)
		}
	}
}

func TestBatteryPercent(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{0, 0},
		{55, 55},
		{100, 100},
		{6200, 0},
		{7100, 50},
		{8000, 100},
		{8400, 100},
		{5000, 0},
	}
	for _, tt := range tests {
		if got := batteryPercent(tt.raw); got != tt.want {
			t.Errorf("batteryPercent(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestParseStatus_BatteryMissing(t *testing.T) {
	ps := parseStatus(gateway.Response{"state": "locked"})
	if ps.batteryKnown {
		t.Error("battery should be unknown when absent")
	}
	ps = parseStatus(gateway.Response{"battery": "7640"})
	if !ps.batteryKnown || ps.battery != 80 {
		t.Errorf("battery = %d known=%v, want 80", ps.battery, ps.batteryKnown)
	}
}
