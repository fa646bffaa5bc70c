package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/lockgate/internal/lock"
)

// countingRefresher counts cycles; when block is set each cycle waits for
// its context to end.
type countingRefresher struct {
	runs     atomic.Int32
	block    bool
	requests chan struct{}
	started  chan struct{}
}

func newCountingRefresher(block bool) *countingRefresher {
	return &countingRefresher{
		block:    block,
		requests: make(chan struct{}, 1),
		started:  make(chan struct{}, 16),
	}
}

func (r *countingRefresher) Refresh(ctx context.Context) ([]*lock.Device, error) {
	r.runs.Add(1)
	r.started <- struct{}{}
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, nil
}

func (r *countingRefresher) RefreshRequests() <-chan struct{} { return r.requests }

func waitStarted(t *testing.T, r *countingRefresher) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not start")
	}
}

func TestScheduler_StartupAndRequestedRuns(t *testing.T) {
	r := newCountingRefresher(false)
	s := NewScheduler(r, time.Hour, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitStarted(t, r)
	r.requests <- struct{}{}
	waitStarted(t, r)

	if n := r.runs.Load(); n != 2 {
		t.Errorf("runs = %d, want 2", n)
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewScheduler(newCountingRefresher(false), time.Hour, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrSchedulerRunning) {
		t.Errorf("second Start() error = %v, want ErrSchedulerRunning", err)
	}
}

func TestScheduler_StopCancelsRunningCycle(t *testing.T) {
	r := newCountingRefresher(true)
	s := NewScheduler(r, time.Hour, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, r)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return while a cycle was blocked")
	}

	// Stop on a stopped scheduler is a no-op.
	s.Stop()
}

func TestScheduler_TickRuns(t *testing.T) {
	r := newCountingRefresher(false)
	s := NewScheduler(r, time.Second, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitStarted(t, r)
	waitStarted(t, r)
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(newCountingRefresher(false), 0, nil)
	if s.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), DefaultInterval)
	}
}
