package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"swaphouse/server/logging"
	"swaphouse/server/logging/simulation"
)

const (
	// DefaultTickInterval is the room simulation rate, 20 Hz.
	DefaultTickInterval = 50 * time.Millisecond

	tickDurationMetricKey = "round_tick_duration_ms"
	tickOverrunMetricKey  = "round_tick_overrun_total"
	ticksMetricKey        = "round_ticks_total"
)

// SchedulerConfig tunes the fixed-interval runner.
type SchedulerConfig struct {
	Interval time.Duration
	// CatchupMaxTicks caps the delta handed to a late tick, in intervals.
	CatchupMaxTicks int
}

// TickContext describes one scheduled tick.
type TickContext struct {
	Tick  uint64
	Now   time.Time
	Delta time.Duration
}

// TickResult reports how a tick went relative to its budget.
type TickResult struct {
	Tick         uint64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
}

// Scheduler runs step on a fixed interval from a single goroutine, so at most
// one tick is ever in flight.
type Scheduler struct {
	step   func(TickContext)
	config SchedulerConfig
	deps   Deps

	// AfterStep, when set before Start, observes every tick result.
	AfterStep func(TickResult)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	running   atomic.Bool
	ticks     atomic.Uint64
	streak    uint64
}

// NewScheduler prepares a runner for step. Nothing runs until Start.
func NewScheduler(step func(TickContext), cfg SchedulerConfig, deps Deps) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	if cfg.CatchupMaxTicks < 1 {
		cfg.CatchupMaxTicks = 1
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	return &Scheduler{
		step:   step,
		config: cfg,
		deps:   deps,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the tick goroutine. Repeated calls are no-ops.
func (s *Scheduler) Start() {
	if s == nil || s.step == nil {
		return
	}
	s.startOnce.Do(func() {
		s.running.Store(true)
		go s.run()
	})
}

// Stop asks the tick goroutine to exit after the tick in progress, if any.
// It never blocks, so a tick may stop its own scheduler. A scheduler stopped
// before Start never runs and reports Done at once.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	s.startOnce.Do(func() { close(s.done) })
}

// Done is closed once the tick goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Running reports whether the tick goroutine is active.
func (s *Scheduler) Running() bool {
	return s != nil && s.running.Load()
}

// Ticks reports how many ticks have completed.
func (s *Scheduler) Ticks() uint64 {
	if s == nil {
		return 0
	}
	return s.ticks.Load()
}

func (s *Scheduler) run() {
	defer func() {
		s.running.Store(false)
		close(s.done)
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	clock := s.deps.Clock
	budget := s.config.Interval
	maxDelta := budget * time.Duration(s.config.CatchupMaxTicks)
	last := clock.Now()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		// A stop that raced the ticker wins.
		select {
		case <-s.stop:
			return
		default:
		}

		now := clock.Now()
		delta := now.Sub(last)
		clamped := false
		if delta <= 0 {
			delta = budget
		} else if delta > maxDelta {
			delta = maxDelta
			clamped = true
		}
		last = now

		tick := s.ticks.Add(1)
		start := clock.Now()
		s.step(TickContext{Tick: tick, Now: now, Delta: delta})
		result := TickResult{
			Tick:         tick,
			Duration:     clock.Now().Sub(start),
			Budget:       budget,
			ClampedDelta: clamped,
		}
		s.observe(result)
		if s.AfterStep != nil {
			s.AfterStep(result)
		}
	}
}

func (s *Scheduler) observe(result TickResult) {
	if m := s.deps.Metrics; m != nil {
		m.Add(ticksMetricKey, 1)
		m.Store(tickDurationMetricKey, uint64(result.Duration.Milliseconds()))
	}
	if result.Duration <= result.Budget {
		s.streak = 0
		return
	}
	s.streak++
	if m := s.deps.Metrics; m != nil {
		m.Add(tickOverrunMetricKey, 1)
	}
	ratio := float64(result.Duration) / float64(result.Budget)
	simulation.TickBudgetOverrun(context.Background(), s.deps.Publisher, s.deps.Room, result.Tick, simulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          ratio,
		Streak:         s.streak,
	}, nil)
	if s.deps.Logger != nil && s.streak&(s.streak-1) == 0 {
		s.deps.Logger.Printf("[tick] room=%s tick=%d took %s budget=%s streak=%d", s.deps.Room, result.Tick, result.Duration, result.Budget, s.streak)
	}
}
