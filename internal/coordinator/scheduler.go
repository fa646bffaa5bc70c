package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/lockgate/internal/lock"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 60 * time.Second

// Refresher runs cycles and reports out-of-band refresh requests.
type Refresher interface {
	Refresh(ctx context.Context) ([]*lock.Device, error)
	RefreshRequests() <-chan struct{}
}

// Scheduler runs a Refresher on a fixed interval. It runs one cycle at
// start, one every interval, and one for each refresh request. A tick that
// lands while a cycle is still running is skipped.
//
// Stop cancels the context the scheduler waits on, so it returns without
// sitting out busy and backoff waits. The cycle itself belongs to the
// Refresher; close the Coordinator to end it.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. A non-positive interval selects
// DefaultInterval.
func NewScheduler(r Refresher, interval time.Duration, logger Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		refresher: r,
		interval:  interval,
		logger:    logger,
	}
}

// Interval returns the polling interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start begins scheduling. Cycles run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{s.logger}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.run(runCtx, "scheduled")
	}); err != nil {
		cancel()
		return fmt.Errorf("scheduling refresh: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(runCtx, "startup")
		for {
			select {
			case <-runCtx.Done():
				return
			case <-s.refresher.RefreshRequests():
				s.run(runCtx, "requested")
			}
		}
	}()

	c.Start()
	s.cron, s.cancel, s.done = c, cancel, done
	s.logger.Info("refresh scheduler started", "interval", s.interval)
	return nil
}

// Stop stops waiting on any running cycle and waits for scheduled work to end.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	<-s.done
	s.cron, s.cancel, s.done = nil, nil, nil
	s.logger.Info("refresh scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.refresher.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("refresh cycle ended early", "trigger", trigger, "error", err)
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
