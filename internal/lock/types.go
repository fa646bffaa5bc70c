package lock

import (
	"fmt"
	"strings"
	"time"
)

// Record is one lock in the directory.
// This matches the locks table in migrations/20260301_120000_locks.up.sql.
type Record struct {
	// ID is the stable key used by the API and MQTT topics.
	ID string `json:"id" yaml:"id"`

	// Identifier is the lock id the gateway knows it by.
	Identifier string `json:"identifier" yaml:"identifier"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// ShareCode signs commands for this lock. Never serialised to clients.
	ShareCode string `json:"-" yaml:"share_code"`

	// GatewayID names the gateway the lock is paired with.
	GatewayID string `json:"gateway_id" yaml:"gateway_id"`

	// Host is the gateway address reported by the directory, if any.
	Host string `json:"host,omitempty" yaml:"host"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks required fields and fills the display name.
func (r *Record) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(r.Identifier) == "" {
		missing = append(missing, "identifier")
	}
	if r.ShareCode == "" {
		missing = append(missing, "share_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q missing %s", ErrInvalidRecord, r.ID, strings.Join(missing, ", "))
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	return nil
}

// Snapshot is a point-in-time copy of a device's state.
type Snapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	GatewayID  string `json:"gateway_id"`

	// Locked is the last known bolt position.
	Locked bool `json:"locked"`

	// BatteryLevel is a percentage in 0..100.
	BatteryLevel int `json:"battery_level"`

	// Available is false until the first successful status read.
	Available bool `json:"available"`

	// UpdatedAt is when state last changed from a gateway response.
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// SameState reports whether two snapshots carry identical lock state.
func (s Snapshot) SameState(o Snapshot) bool {
	return s.Locked == o.Locked &&
		s.BatteryLevel == o.BatteryLevel &&
		s.Available == o.Available
}
