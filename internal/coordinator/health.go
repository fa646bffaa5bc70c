package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lockgate/internal/gateway"
)

// Health is the observed reachability of the gateway.
type Health int

const (
	// Reachable means the last probe got an answer.
	Reachable Health = iota

	// Unreachable means the last probe failed.
	Unreachable
)

func (h Health) String() string {
	if h == Unreachable {
		return "unreachable"
	}
	return "reachable"
}

// MarshalText encodes the health as its name.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a health name.
func (h *Health) UnmarshalText(b []byte) error {
	switch string(b) {
	case "reachable":
		*h = Reachable
	case "unreachable":
		*h = Unreachable
	default:
		return fmt.Errorf("coordinator: unknown health %q", b)
	}
	return nil
}

// HealthStatus describes the gateway as last observed by the probe.
type HealthStatus struct {
	GatewayID string `json:"gateway_id"`
	State     Health `json:"state"`

	// Reason is why the last probe failed. Empty while reachable.
	Reason string `json:"reason,omitempty"`

	// Synchronizing is true when the gateway reported a firmware sync.
	Synchronizing bool `json:"synchronizing"`

	// Since is when State last changed.
	Since time.Time `json:"since"`

	// LastProbe is when the probe last ran.
	LastProbe time.Time `json:"last_probe,omitzero"`
}

// probeReason turns a probe error into a short diagnostic.
func probeReason(err error) string {
	if kind, ok := gateway.TransportKind(err); ok {
		switch kind {
		case gateway.KindTimeout:
			return "connection timed out"
		case gateway.KindRefused:
			return "connection refused"
		case gateway.KindDNS:
			return "DNS resolution failed"
		case gateway.KindReset:
			return "connection reset"
		default:
			return "network error"
		}
	}
	if errors.Is(err, gateway.ErrInvalidResponse) {
		return "invalid response"
	}
	return fmt.Sprintf("%T", err)
}
