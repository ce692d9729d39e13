package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/telemetry"
)

// CycleFunc is one evaluation cycle.
type CycleFunc func(ctx context.Context) error

// State is the lifecycle state of the scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	RunOnStart   bool
}

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler runs a cycle on a fixed interval with at most one cycle in
// flight. A tick that finds a cycle running is dropped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	state   atomic.Int32
	started atomic.Bool
	cycle   atomic.Pointer[CycleFunc]

	// mu orders a Trigger's inflight.Add before Stop's inflight.Wait.
	mu sync.Mutex

	// cycleCtx is cancelled when Stop gives up waiting.
	cycleCtx    context.Context
	cancelCycle context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:        opts,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		cycleCtx:    ctx,
		cancelCycle: cancel,
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start launches the ticking loop. Cycles inherit values from ctx but are
// only cancelled by Stop. Cancelling ctx stops the loop.
func (s *Scheduler) Start(ctx context.Context, cycle CycleFunc) error {
	if cycle == nil {
		return fmt.Errorf("scheduler: nil cycle")
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.State() == StateStopped {
		return fmt.Errorf("scheduler: stopped")
	}
	s.cycle.Store(&cycle)

	go s.loop(ctx)
	s.logger.Info().Dur("interval", s.opts.Interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.Trigger(ctx)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a cycle now unless one is already running or the scheduler
// is stopped. It reports whether a cycle was started and does not wait for it.
// Safe for concurrent use with Start and Stop.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	cycle := s.cycle.Load()
	if cycle == nil {
		return false
	}

	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		running := s.State() == StateRunning
		s.mu.Unlock()
		if running {
			telemetry.CycleRuns.WithLabelValues("skipped").Inc()
			s.logger.Warn().Msg("previous cycle still running, tick skipped")
		}
		return false
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go s.run(context.WithoutCancel(ctx), *cycle)
	return true
}

func (s *Scheduler) run(parent context.Context, cycle CycleFunc) {
	defer s.inflight.Done()
	// back to idle unless Stop moved us to stopped meanwhile
	defer s.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(s.cycleCtx, cancel)
	defer stop()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			telemetry.CycleRuns.WithLabelValues("panic").Inc()
			s.logger.Error().Interface("panic", r).Dur("elapsed", time.Since(started)).Msg("cycle panicked")
		}
	}()

	err := cycle(ctx)
	elapsed := time.Since(started)
	telemetry.CycleDuration.Observe(elapsed.Seconds())
	if err != nil {
		telemetry.CycleRuns.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Dur("elapsed", elapsed).Msg("cycle failed")
		return
	}
	telemetry.CycleRuns.WithLabelValues("ok").Inc()
	s.logger.Debug().Dur("elapsed", elapsed).Msg("cycle completed")
}

// Stop halts ticking and waits for an in-flight cycle until ctx is done, at
// which point the cycle's context is cancelled and it is abandoned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateStopped))
		s.mu.Unlock()
		close(s.stopCh)
	})

	if s.started.Load() {
		select {
		case <-s.loopDone:
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelCycle()
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancelCycle()
		s.logger.Warn().Msg("scheduler stopped with a cycle still running")
		return ctx.Err()
	}
}
