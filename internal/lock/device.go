package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lockgate/internal/gateway"
)

// GatewayResolver looks up a gateway client by id.
type GatewayResolver interface {
	Gateway(id string) (*gateway.Client, error)
}

// Device is the live handle for one lock.
//
// Identity fields are fixed at construction. State fields change in place
// on Refresh and verbs and are read through the accessors.
type Device struct {
	id         string
	identifier string
	name       string
	shareCode  string
	gatewayID  string
	gateways   GatewayResolver

	mu        sync.RWMutex
	locked    bool
	battery   int
	available bool
	updatedAt time.Time
}

// NewDevice creates a device from a directory record.
func NewDevice(rec Record, gateways GatewayResolver) *Device {
	return &Device{
		id:         rec.ID,
		identifier: rec.Identifier,
		name:       rec.Name,
		shareCode:  rec.ShareCode,
		gatewayID:  rec.GatewayID,
		gateways:   gateways,
	}
}

// ID returns the lock id.
func (d *Device) ID() string { return d.id }

// Name returns the display name.
func (d *Device) Name() string { return d.name }

// Identifier returns the id the gateway uses for this lock.
func (d *Device) Identifier() string { return d.identifier }

// GatewayID returns the id of the owning gateway.
func (d *Device) GatewayID() string { return d.gatewayID }

// IsLocked returns the last known bolt position.
func (d *Device) IsLocked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.locked
}

// BatteryLevel returns the last known battery percentage.
func (d *Device) BatteryLevel() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.battery
}

// Snapshot returns a copy of the device's identity and state.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		ID:           d.id,
		Name:         d.name,
		Identifier:   d.identifier,
		GatewayID:    d.gatewayID,
		Locked:       d.locked,
		BatteryLevel: d.battery,
		Available:    d.available,
		UpdatedAt:    d.updatedAt,
	}
}

// Refresh fetches the lock status and updates state in place.
// On error the previous state is kept.
func (d *Device) Refresh(ctx context.Context) error {
	client, err := d.client()
	if err != nil {
		return err
	}
	resp, err := client.LockerStatus(ctx, d.identifier, d.shareCode)
	if err != nil {
		return err
	}
	d.apply(parseStatus(resp))
	return nil
}

// Open unlocks the lock.
func (d *Device) Open(ctx context.Context) error {
	client, err := d.client()
	if err != nil {
		return err
	}
	if err := client.LockerOpen(ctx, d.identifier, d.shareCode); err != nil {
		return fmt.Errorf("opening %s: %w", d.id, err)
	}
	d.setLocked(false)
	return nil
}

// Close locks the lock.
func (d *Device) Close(ctx context.Context) error {
	client, err := d.client()
	if err != nil {
		return err
	}
	if err := client.LockerClose(ctx, d.identifier, d.shareCode); err != nil {
		return fmt.Errorf("closing %s: %w", d.id, err)
	}
	d.setLocked(true)
	return nil
}

// Calibrate runs the lock's calibration routine.
func (d *Device) Calibrate(ctx context.Context) error {
	client, err := d.client()
	if err != nil {
		return err
	}
	if err := client.LockerCalibrate(ctx, d.identifier, d.shareCode); err != nil {
		return fmt.Errorf("calibrating %s: %w", d.id, err)
	}
	return nil
}

// Sync pushes time and configuration to the lock.
func (d *Device) Sync(ctx context.Context) error {
	client, err := d.client()
	if err != nil {
		return err
	}
	if err := client.LockerSynchronize(ctx, d.identifier, d.shareCode); err != nil {
		return fmt.Errorf("synchronising %s: %w", d.id, err)
	}
	return nil
}

func (d *Device) client() (*gateway.Client, error) {
	client, err := d.gateways.Gateway(d.gatewayID)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", d.id, err)
	}
	return client, nil
}

func (d *Device) apply(ps parsedStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ps.lockedKnown {
		d.locked = ps.locked
	}
	if ps.batteryKnown {
		d.battery = ps.battery
	}
	d.available = true
	d.updatedAt = time.Now().UTC()
}

// setLocked records the commanded position after a successful verb.
func (d *Device) setLocked(locked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked = locked
	d.updatedAt = time.Now().UTC()
}
