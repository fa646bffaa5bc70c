package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/lockgate/internal/gateway"
	"github.com/nerrad567/lockgate/internal/lock"
	"github.com/nerrad567/lockgate/internal/retry"
)

// Cycle defaults.
const (
	DefaultInterDeviceDelay = 500 * time.Millisecond
	DefaultBusyWait         = 6 * time.Second
	DefaultSyncWait         = 5 * time.Second
	DefaultDeviceAttempts   = 3
	DefaultSyncAttempts     = 3
)

// Logger defines the logging interface used by the coordinator.
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

// Config tunes a refresh cycle. Zero values select the defaults.
type Config struct {
	// GatewayID selects the gateway this coordinator polls.
	GatewayID string

	// InterDeviceDelay is the pause after each device.
	InterDeviceDelay time.Duration

	// BusyWait is the pause before retrying after code 400 or 500.
	BusyWait time.Duration

	// SyncWait is the pause between gateway synchronize attempts.
	SyncWait time.Duration

	// DeviceAttempts caps status fetches per device per cycle.
	DeviceAttempts int

	// SyncAttempts caps synchronize calls per code-38 remediation.
	SyncAttempts int
}

func (c *Config) applyDefaults() {
	if c.InterDeviceDelay <= 0 {
		c.InterDeviceDelay = DefaultInterDeviceDelay
	}
	if c.BusyWait <= 0 {
		c.BusyWait = DefaultBusyWait
	}
	if c.SyncWait <= 0 {
		c.SyncWait = DefaultSyncWait
	}
	if c.DeviceAttempts <= 0 {
		c.DeviceAttempts = DefaultDeviceAttempts
	}
	if c.SyncAttempts <= 0 {
		c.SyncAttempts = DefaultSyncAttempts
	}
}

// Options configures a Coordinator.
type Options struct {
	Config   Config
	Registry *lock.Registry

	// Logger is optional.
	Logger Logger

	// Metrics is optional.
	Metrics MetricsSink
}

// Coordinator runs refresh cycles for the locks behind one gateway.
//
// The device list is captured at construction: load the registry before
// calling New. Every cycle returns that same slice, and devices are only
// mutated in place.
//
// Shared cycles started by Refresh run on a context owned by the
// coordinator, not by any caller, and end when Close is called.
//
// Thread Safety: RefreshCycle must not run concurrently with itself; use
// Refresh, which coalesces concurrent callers into one cycle. All other
// methods are safe for concurrent use.
type Coordinator struct {
	cfg      Config
	registry *lock.Registry
	client   *gateway.Client
	devices  []*lock.Device
	logger   Logger
	metrics  MetricsSink

	healthMu sync.RWMutex
	health   HealthStatus

	listenersMu sync.RWMutex
	listeners   []Listener

	reportMu   sync.RWMutex
	lastReport *CycleReport

	flight   singleflight.Group
	requests chan struct{}

	// runCtx scopes shared cycles; stop cancels it.
	runCtx context.Context
	stop   context.CancelFunc
}

// New creates a coordinator for cfg.GatewayID.
func New(opts Options) (*Coordinator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrNoGateway)
	}
	client, err := opts.Registry.Gateway(opts.Config.GatewayID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoGateway, err)
	}

	cfg := opts.Config
	cfg.applyDefaults()

	var devices []*lock.Device
	for _, d := range opts.Registry.Devices() {
		if d.GatewayID() == cfg.GatewayID {
			devices = append(devices, d)
		}
	}

	c := &Coordinator{
		cfg:      cfg,
		registry: opts.Registry,
		client:   client,
		devices:  devices,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		health: HealthStatus{
			GatewayID: cfg.GatewayID,
			State:     Reachable,
			Since:     time.Now().UTC(),
		},
		requests: make(chan struct{}, 1),
	}
	c.runCtx, c.stop = context.WithCancel(context.Background())
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// GatewayID returns the id of the polled gateway.
func (c *Coordinator) GatewayID() string { return c.cfg.GatewayID }

// Gateway returns the client for the polled gateway.
func (c *Coordinator) Gateway() *gateway.Client { return c.client }

// Devices returns the device handles refreshed by this coordinator.
func (c *Coordinator) Devices() []*lock.Device {
	return c.devices
}

// Device returns the handle for one lock.
func (c *Coordinator) Device(id string) (*lock.Device, error) {
	for _, d := range c.devices {
		if d.ID() == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", lock.ErrDeviceNotFound, id)
}

// Health returns the current gateway health.
func (c *Coordinator) Health() HealthStatus {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health
}

// LastCycle returns the report of the most recent completed cycle.
func (c *Coordinator) LastCycle() (CycleReport, bool) {
	c.reportMu.RLock()
	defer c.reportMu.RUnlock()
	if c.lastReport == nil {
		return CycleReport{}, false
	}
	return *c.lastReport, true
}

// AddListener registers l for state change notifications.
func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RequestRefresh asks the scheduler for an extra cycle. It never blocks;
// requests made while one is pending are merged.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// RefreshRequests delivers pending RequestRefresh calls.
func (c *Coordinator) RefreshRequests() <-chan struct{} {
	return c.requests
}

// Refresh runs one cycle. Callers arriving while a cycle is in flight
// share its result instead of starting another.
//
// The cycle runs on the coordinator's own context, so cancelling ctx only
// stops this caller waiting: the cycle carries on for the other callers.
// After Close, Refresh returns context.Canceled without polling.
func (c *Coordinator) Refresh(ctx context.Context) ([]*lock.Device, error) {
	if err := c.runCtx.Err(); err != nil {
		return c.devices, err
	}
	ch := c.flight.DoChan("cycle", func() (any, error) {
		return nil, c.runCycle(c.runCtx)
	})
	select {
	case res := <-ch:
		return c.devices, res.Err
	case <-ctx.Done():
		return c.devices, ctx.Err()
	}
}

// Close cancels the shared cycle, ending its busy and sync waits, and makes
// later Refresh calls fail. It does not wait for the cycle to unwind.
func (c *Coordinator) Close() {
	c.stop()
}

// RefreshCycle runs one cycle: probe the gateway, then refresh each device
// in turn. It returns the same device slice every time. Probe and device
// failures never produce an error; only cancellation of ctx does.
func (c *Coordinator) RefreshCycle(ctx context.Context) ([]*lock.Device, error) {
	return c.devices, c.runCycle(ctx)
}

func (c *Coordinator) runCycle(ctx context.Context) error {
	report := CycleReport{
		ID:        uuid.NewString(),
		GatewayID: c.cfg.GatewayID,
		Started:   time.Now().UTC(),
	}
	defer func() {
		report.Duration = time.Since(report.Started)
		c.finish(report)
	}()

	resp, err := c.client.Probe(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Probe, report.ProbeReason = ProbeFailed, "cancelled"
			return ctxErr
		}
		if _, isAPI := gateway.AsAPIError(err); !isAPI {
			reason := probeReason(err)
			report.Probe, report.ProbeReason = ProbeFailed, reason
			c.markUnreachable(reason, report.ID)
			return nil
		}
		// A "ko" answer still proves the gateway is up.
		c.logger.Debug("gateway probe returned error", "gateway", c.cfg.GatewayID, "cycle_id", report.ID, "error", err)
	}

	c.markReachable(report.ID)

	if resp != nil && resp.Synchronizing() {
		c.setSynchronizing(true)
		report.Probe = ProbeSynchronizing
		c.logger.Info("gateway is synchronizing, skipping lock updates this cycle",
			"gateway", c.cfg.GatewayID, "cycle_id", report.ID)
		return nil
	}
	c.setSynchronizing(false)
	report.Probe = ProbeOK

	for _, d := range c.devices {
		before := d.Snapshot()
		result := c.refreshDevice(ctx, d, report.ID)
		report.Devices = append(report.Devices, result)

		if after := d.Snapshot(); !after.SameState(before) {
			c.notifyLock(after)
		}
		if result.Outcome == OutcomeCancelled {
			return ctx.Err()
		}
		if err := retry.Sleep(ctx, c.cfg.InterDeviceDelay); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) finish(report CycleReport) {
	c.reportMu.Lock()
	c.lastReport = &report
	c.reportMu.Unlock()

	c.logger.Debug("refresh cycle finished",
		"gateway", report.GatewayID,
		"cycle_id", report.ID,
		"probe", string(report.Probe),
		"refreshed", report.Count(OutcomeRefreshed),
		"devices", len(report.Devices),
		"duration", report.Duration,
	)
	if c.metrics != nil {
		c.metrics.RecordCycle(report)
	}
}

// markUnreachable records a failed probe. Only the first failure after a
// success is logged above debug level.
func (c *Coordinator) markUnreachable(reason, cycleID string) {
	c.healthMu.Lock()
	now := time.Now().UTC()
	c.health.LastProbe = now
	c.health.Reason = reason
	changed := c.health.State != Unreachable
	if changed {
		c.health.State = Unreachable
		c.health.Since = now
	}
	status := c.health
	c.healthMu.Unlock()

	if !changed {
		c.logger.Debug("gateway still unreachable, skipping device updates",
			"gateway", c.cfg.GatewayID, "host", c.client.Host(), "reason", reason, "cycle_id", cycleID)
		return
	}
	c.logger.Warn("gateway is unreachable, skipping device updates",
		"gateway", c.cfg.GatewayID, "host", c.client.Host(), "reason", reason, "cycle_id", cycleID)
	c.notifyHealth(status)
}

func (c *Coordinator) markReachable(cycleID string) {
	c.healthMu.Lock()
	now := time.Now().UTC()
	c.health.LastProbe = now
	c.health.Reason = ""
	changed := c.health.State != Reachable
	if changed {
		c.health.State = Reachable
		c.health.Since = now
	}
	status := c.health
	c.healthMu.Unlock()

	if changed {
		c.logger.Info("gateway is back online, resuming device updates",
			"gateway", c.cfg.GatewayID, "host", c.client.Host(), "cycle_id", cycleID)
		c.notifyHealth(status)
	}
}

func (c *Coordinator) setSynchronizing(on bool) {
	c.healthMu.Lock()
	changed := c.health.Synchronizing != on
	c.health.Synchronizing = on
	status := c.health
	c.healthMu.Unlock()

	if changed {
		c.notifyHealth(status)
	}
}

func (c *Coordinator) notifyLock(snap lock.Snapshot) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		l.LockStateChanged(snap)
	}
}

func (c *Coordinator) notifyHealth(status HealthStatus) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		l.GatewayHealthChanged(status)
	}
}
