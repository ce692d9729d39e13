package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitForState(t *testing.T, s *Scheduler, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("scheduler never reached %s, stuck in %s", want, s.State())
}

func TestTriggerSkipsWhileRunning(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	release := make(chan struct{})
	var runs atomic.Int32

	if err := s.Start(context.Background(), func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	if !s.Trigger(context.Background()) {
		t.Fatal("first trigger should start a cycle")
	}
	if s.State() != StateRunning {
		t.Fatalf("expected running, got %s", s.State())
	}
	if s.Trigger(context.Background()) {
		t.Fatal("second trigger must be skipped while a cycle runs")
	}

	close(release)
	waitForState(t, s, StateIdle)

	if runs.Load() != 1 {
		t.Fatalf("expected exactly one cycle, got %d", runs.Load())
	}
}

// A cycle longer than the interval suppresses the ticks that land inside it:
// ticks at 60 and 90 with a 90-unit cycle started at 0 run one cycle in [0,90].
func TestSlowCycleNeverOverlaps(t *testing.T) {
	const unit = time.Millisecond
	s := New(Options{Interval: 60 * unit, RunOnStart: true}, zerolog.Nop())

	var active, maxActive, runs atomic.Int32
	err := s.Start(context.Background(), func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(90 * unit)
		active.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(85 * unit)
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected one cycle inside the first 90 units, got %d", got)
	}

	time.Sleep(300 * unit)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if maxActive.Load() != 1 {
		t.Fatalf("cycles overlapped: max concurrency %d", maxActive.Load())
	}
	if runs.Load() > 4 {
		t.Fatalf("ticks were queued: %d cycles", runs.Load())
	}
}

func TestFailingCyclesReturnToIdle(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	var calls atomic.Int32
	if err := s.Start(context.Background(), func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("store unavailable")
		}
		panic("boom")
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	s.Trigger(context.Background())
	waitForState(t, s, StateIdle)
	for calls.Load() < 1 {
		time.Sleep(time.Millisecond)
	}

	if !s.Trigger(context.Background()) {
		t.Fatal("expected a new cycle after an error")
	}
	waitForState(t, s, StateIdle)
	for calls.Load() < 2 {
		time.Sleep(time.Millisecond)
	}

	if !s.Trigger(context.Background()) {
		t.Fatal("expected a new cycle after a panic")
	}
}

func TestStopAbandonsCycleAtDeadline(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	cancelled := make(chan struct{})
	started := make(chan struct{})

	if err := s.Start(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Trigger(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("abandoned cycle was not cancelled")
	}
	if s.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", s.State())
	}
	if s.Trigger(context.Background()) {
		t.Fatal("trigger after stop must not run")
	}
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	var finished atomic.Bool
	started := make(chan struct{})

	if err := s.Start(context.Background(), func(ctx context.Context) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Trigger(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !finished.Load() {
		t.Fatal("stop returned before the cycle finished")
	}
}

func TestStartTwice(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.Start(context.Background(), noop); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())
	if err := s.Start(context.Background(), noop); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestConcurrentTriggersAndStop(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	var active atomic.Int32

	// Triggers issued before Start must be refused, not race the cycle field.
	var pre sync.WaitGroup
	for i := 0; i < 4; i++ {
		pre.Add(1)
		go func() {
			defer pre.Done()
			s.Trigger(context.Background())
		}()
	}
	if err := s.Start(context.Background(), func(ctx context.Context) error {
		active.Add(1)
		defer active.Add(-1)
		time.Sleep(time.Millisecond)
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	pre.Wait()

	done := make(chan struct{})
	var callers sync.WaitGroup
	for i := 0; i < 8; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			for {
				select {
				case <-done:
					return
				default:
					s.Trigger(context.Background())
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if n := active.Load(); n != 0 {
		t.Fatalf("stop returned with %d cycles still running", n)
	}
	if s.Trigger(context.Background()) {
		t.Fatal("trigger after stop must not start a cycle")
	}
	close(done)
	callers.Wait()
	if n := active.Load(); n != 0 {
		t.Fatalf("a cycle started after stop: %d active", n)
	}
}
