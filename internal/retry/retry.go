// Package retry runs an operation under a bounded retry policy.
//
// A Policy is three independent pieces: how many attempts are allowed, how long
// to wait before the next attempt, and which errors are worth another attempt.
// The gateway transport, the gateway protocol loop and the coordinator's
// per-device loop each build their own Policy, so each layer's contract can be
// tested in isolation.
//
// Waits are interruptible: if the context is cancelled while sleeping between
// attempts, Do returns the context error immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes when and how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff returns the wait before the attempt that follows attempt
	// (1-based) failed with err. Nil means no wait.
	Backoff func(attempt int, err error) time.Duration

	// Retryable reports whether attempt (1-based) failing with err should be
	// followed by another attempt. Nil means every error is retryable.
	Retryable func(attempt int, err error) bool

	// OnRetry is called before each wait. Optional; used for logging.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// permanentError stops a retry loop regardless of the policy.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do stops immediately and returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, the policy declines another attempt, or ctx
// is cancelled. fn receives the 1-based attempt number.
//
// The returned error is the last error from fn (with any Permanent wrapper
// removed), or the context error if cancellation interrupted a wait.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == maxAttempts {
			break
		}
		if p.Retryable != nil && !p.Retryable(attempt, err) {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if sleepErr := Sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// Sleep waits for d or until ctx is done, whichever comes first.
// A non-positive d only checks the context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exponential returns a backoff that starts at initial and doubles after every
// attempt: initial, 2*initial, 4*initial, ...
func Exponential(initial time.Duration) func(attempt int, err error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return initial << (attempt - 1)
	}
}

// Constant returns a backoff that always waits d.
func Constant(d time.Duration) func(attempt int, err error) time.Duration {
	return func(int, error) time.Duration { return d }
}
