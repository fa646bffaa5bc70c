package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/lockgate/internal/retry"
)

// Default request spacing.
const (
	// DefaultHeavyDelay is the minimum gap before a heavy request.
	DefaultHeavyDelay = 5 * time.Second

	// DefaultLightDelay is the minimum gap before a light request.
	DefaultLightDelay = 1 * time.Second
)

// RateLimiter spaces requests to one gateway.
//
// There is a single last-request timestamp shared by both classes: a light
// request issued right after a heavy one waits for the light delay measured
// from the heavy request, and vice versa. The gateway serialises requests
// internally and drops commands when they arrive back to back.
//
// Thread Safety: Wait is safe for concurrent use; callers are served one at
// a time.
type RateLimiter struct {
	heavy time.Duration
	light time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewRateLimiter creates a limiter with the given class delays.
// Negative delays are treated as zero.
func NewRateLimiter(heavy, light time.Duration) *RateLimiter {
	return &RateLimiter{
		heavy: max(heavy, 0),
		light: max(light, 0),
	}
}

// Delay returns the configured delay for class.
func (l *RateLimiter) Delay(class RateClass) time.Duration {
	if class == RateHeavy {
		return l.heavy
	}
	return l.light
}

// Wait blocks until the class delay has elapsed since the previous request,
// then records now as the new last-request time.
//
// If ctx is cancelled while waiting, Wait returns the context error and the
// last-request time is left unchanged.
func (l *RateLimiter) Wait(ctx context.Context, class RateClass) error {
	_, err := l.wait(ctx, class)
	return err
}

// wait is Wait that also reports how long it slept.
func (l *RateLimiter) wait(ctx context.Context, class RateClass) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pause time.Duration
	if !l.last.IsZero() {
		pause = l.Delay(class) - time.Since(l.last)
	}
	if pause > 0 {
		if err := retry.Sleep(ctx, pause); err != nil {
			return 0, err
		}
	} else if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.last = time.Now()
	return max(pause, 0), nil
}

// LastRequest returns the time of the most recent permitted request.
func (l *RateLimiter) LastRequest() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
