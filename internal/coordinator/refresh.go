package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/lockgate/internal/gateway"
	"github.com/nerrad567/lockgate/internal/lock"
	"github.com/nerrad567/lockgate/internal/retry"
)

// errSyncFailed marks a device abandoned because the gateway clock could
// not be resynchronised.
var errSyncFailed = errors.New("coordinator: gateway time sync failed")

// devicePolicy is the per-device retry policy.
//
//	transport error        → stop (the transport already retried)
//	400 / 500 busy         → wait BusyWait, retry
//	38 clock invalid       → retry (the attempt already resynchronised)
//	33 / 34 transient      → retry only after the first attempt
//	anything else          → stop
func (c *Coordinator) devicePolicy(d *lock.Device, cycleID string) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.cfg.DeviceAttempts,
		Backoff: func(_ int, err error) time.Duration {
			if apiErr, ok := gateway.AsAPIError(err); ok && apiErr.Busy() {
				return c.cfg.BusyWait
			}
			return 0
		},
		Retryable: func(attempt int, err error) bool {
			if gateway.IsTransport(err) {
				return false
			}
			apiErr, ok := gateway.AsAPIError(err)
			if !ok {
				return false
			}
			switch {
			case apiErr.Busy(), apiErr.ClockInvalid():
				return true
			case apiErr.Transient():
				return attempt == 1
			}
			return false
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			code, _ := gateway.ErrorCode(err)
			c.logger.Debug("retrying lock status",
				"lock", d.Name(),
				"code", code,
				"attempt", attempt,
				"max_attempts", c.cfg.DeviceAttempts,
				"wait", wait,
				"cycle_id", cycleID,
			)
		},
	}
}

// refreshDevice fetches one device's status under the device policy.
// It never returns an error; the outcome is recorded in the result and the
// device keeps its last state on failure.
func (c *Coordinator) refreshDevice(ctx context.Context, d *lock.Device, cycleID string) DeviceResult {
	start := time.Now()
	result := DeviceResult{LockID: d.ID()}

	err := c.devicePolicy(d, cycleID).Do(ctx, func(ctx context.Context, attempt int) error {
		result.Attempts = attempt

		err := d.Refresh(ctx)
		if err == nil {
			return nil
		}
		if apiErr, ok := gateway.AsAPIError(err); ok && apiErr.ClockInvalid() {
			c.logger.Info("gateway time invalid, auto-syncing gateway time",
				"lock", d.Name(), "attempt", attempt, "cycle_id", cycleID)
			result.Syncs++
			if syncErr := c.resync(ctx, d, cycleID); syncErr != nil {
				if ctx.Err() != nil {
					return retry.Permanent(ctx.Err())
				}
				return retry.Permanent(errors.Join(errSyncFailed, err))
			}
		}
		return err
	})
	result.Duration = time.Since(start)
	result.Code, _ = gateway.ErrorCode(err)
	result.Outcome = c.classify(ctx, d, err, cycleID)
	return result
}

// resync calls the gateway synchronize action under its own policy.
func (c *Coordinator) resync(ctx context.Context, d *lock.Device, cycleID string) error {
	policy := retry.Policy{
		MaxAttempts: c.cfg.SyncAttempts,
		Backoff:     retry.Constant(c.cfg.SyncWait),
		Retryable: func(_ int, _ error) bool {
			return ctx.Err() == nil
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Debug("gateway sync busy, waiting",
				"lock", d.Name(),
				"attempt", attempt,
				"max_attempts", c.cfg.SyncAttempts,
				"wait", wait,
				"error", err,
				"cycle_id", cycleID,
			)
		},
	}

	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		return c.client.Synchronize(ctx)
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to auto-sync gateway time",
				"lock", d.Name(), "attempts", c.cfg.SyncAttempts, "error", err, "cycle_id", cycleID)
		}
		return err
	}
	c.logger.Info("gateway time sync succeeded, retrying status", "lock", d.Name(), "cycle_id", cycleID)
	return nil
}

// classify maps the final error of a device refresh to an outcome and logs
// it at the level that outcome deserves.
func (c *Coordinator) classify(ctx context.Context, d *lock.Device, err error, cycleID string) Outcome {
	if err == nil {
		return OutcomeRefreshed
	}
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	if errors.Is(err, errSyncFailed) {
		return OutcomeSyncFailed
	}
	if gateway.IsTransport(err) {
		c.logger.Debug("network error updating lock, keeping last state",
			"lock", d.Name(), "error", err, "cycle_id", cycleID)
		return OutcomeUnreachable
	}

	apiErr, ok := gateway.AsAPIError(err)
	switch {
	case ok && apiErr.Busy():
		c.logger.Debug("lock still busy, keeping last state",
			"lock", d.Name(), "code", apiErr.Code, "cycle_id", cycleID)
		return OutcomeBusy
	case ok && apiErr.Transient():
		c.logger.Debug("lock unreachable, keeping last state",
			"lock", d.Name(), "code", apiErr.Code, "cycle_id", cycleID)
		return OutcomeOutOfRange
	case ok && apiErr.ClockInvalid():
		c.logger.Warn("gateway time still invalid after sync",
			"lock", d.Name(), "cycle_id", cycleID)
		return OutcomeClockInvalid
	}

	c.logger.Error("error updating lock", "lock", d.Name(), "error", err, "cycle_id", cycleID)
	return OutcomeError
}
