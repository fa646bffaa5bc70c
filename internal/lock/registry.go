package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/lockgate/internal/gateway"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps gateway ids to clients and holds the device handles.
//
// Devices keep their insertion order; Devices() always returns the same
// pointers, so a caller comparing two results sees identical objects.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]*gateway.Client
	devices  []*Device
	byID     map[string]*Device
	logger   Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[string]*gateway.Client),
		byID:     make(map[string]*Device),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddGateway registers a gateway client under its ID.
func (r *Registry) AddGateway(client *gateway.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gateways[client.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrGatewayExists, client.ID())
	}
	r.gateways[client.ID()] = client
	return nil
}

// Gateway returns the client registered under id.
func (r *Registry) Gateway(id string) (*gateway.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotFound, id)
	}
	return client, nil
}

// GatewayIDs returns the registered gateway ids, sorted.
func (r *Registry) GatewayIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddDevice validates rec and creates its device handle. The record's
// gateway must already be registered.
func (r *Registry) AddDevice(rec Record) (*Device, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gateways[rec.GatewayID]; !ok {
		return nil, fmt.Errorf("%w: %s (lock %s)", ErrGatewayNotFound, rec.GatewayID, rec.ID)
	}
	if _, ok := r.byID[rec.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, rec.ID)
	}

	d := NewDevice(rec, r)
	r.devices = append(r.devices, d)
	r.byID[rec.ID] = d
	return d, nil
}

// Device returns the device with the given id.
func (r *Registry) Device(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// Devices returns all device handles in insertion order.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Snapshots returns the current state of every device.
func (r *Registry) Snapshots() []Snapshot {
	devices := r.Devices()
	out := make([]Snapshot, len(devices))
	for i, d := range devices {
		out[i] = d.Snapshot()
	}
	return out
}

// Load creates a device for every record in repo. Records whose gateway is
// not registered are skipped with a warning.
func (r *Registry) Load(ctx context.Context, repo Repository) error {
	records, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading lock directory: %w", err)
	}

	for _, rec := range records {
		if _, err := r.AddDevice(rec); err != nil {
			r.logger.Warn("skipping lock", "lock_id", rec.ID, "error", err)
			continue
		}
	}

	r.logger.Info("lock directory loaded", "count", len(r.Devices()))
	return nil
}
