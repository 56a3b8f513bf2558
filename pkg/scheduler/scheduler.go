// Package scheduler wakes agents on a fixed cadence. Each tick fans out to
// every configured agent after that agent's stagger offset, and a per-name
// in-flight guard guarantees a single agent never has two overlapping runs.
// Different agents run concurrently up to a bounded pool size.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dusseau-dev/mission-control/internal/metrics"
	"github.com/dusseau-dev/mission-control/internal/tracing"
)

// Defaults
const (
	DefaultInterval = 15 * time.Minute
	DefaultGrace    = 30 * time.Second
)

// Trigger labels carried on the run context
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

var (
	// ErrStopped is returned when starting a stopped scheduler
	ErrStopped = errors.New("scheduler is stopped")

	// ErrGraceExceeded is returned by Stop when runs outlive the grace period
	ErrGraceExceeded = errors.New("runs still in flight after grace period")
)

// RunFunc performs one run of the named agent
type RunFunc func(ctx context.Context, name string) error

// Options configures a Scheduler
type Options struct {
	// Agents maps each scheduled name to its offset within a tick
	Agents map[string]time.Duration

	Interval      time.Duration // time between ticks
	MaxConcurrent int           // pool size, defaults to the agent count
	Grace         time.Duration // how long Stop waits for runs
	RunTimeout    time.Duration // per-run deadline, zero for none
	Immediate     bool          // tick once on Start

	// OnComplete, when set, is called after every run
	OnComplete func(name string, err error, elapsed time.Duration)

	Logger zerolog.Logger
}

// Scheduler drives staggered agent runs
type Scheduler struct {
	opts  Options
	run   RunFunc
	names []string
	cron  *cron.Cron
	sem   *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
	timers   map[string]*time.Timer
	started  bool
	stopped  bool
	wg       sync.WaitGroup

	// acquireCtx is cancelled on Stop so queued runs give up their slot.
	// Started runs are never cancelled by the scheduler.
	acquireCtx    context.Context
	cancelAcquire context.CancelFunc
}

// New creates a scheduler. It does not start ticking until Start.
func New(run RunFunc, opts Options) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	if len(opts.Agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	for name, offset := range opts.Agents {
		if offset < 0 {
			return nil, fmt.Errorf("agent %s: negative stagger offset", name)
		}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = len(opts.Agents)
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.RunTimeout < 0 {
		return nil, fmt.Errorf("negative run timeout")
	}

	names := make([]string, 0, len(opts.Agents))
	for name := range opts.Agents {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := opts.Agents[names[i]], opts.Agents[names[j]]
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})

	acquireCtx, cancelAcquire := context.WithCancel(context.Background())

	return &Scheduler{
		opts:          opts,
		run:           run,
		names:         names,
		cron:          cron.New(),
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		inFlight:      make(map[string]struct{}),
		timers:        make(map[string]*time.Timer),
		acquireCtx:    acquireCtx,
		cancelAcquire: cancelAcquire,
	}, nil
}

// Start begins ticking every Interval
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	spec := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	s.cron.Start()

	s.opts.Logger.Info().
		Dur("interval", s.opts.Interval).
		Int("agents", len(s.names)).
		Int("maxConcurrent", s.opts.MaxConcurrent).
		Msg("Scheduler started")

	if s.opts.Immediate {
		s.Tick()
	}
	return nil
}

// Tick schedules one wake for every agent at its stagger offset
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	metrics.RecordSchedulerTick()
	s.opts.Logger.Debug().Msg("Scheduler tick")

	for _, name := range s.names {
		offset := s.opts.Agents[name]
		if offset == 0 {
			s.dispatchLocked(name, TriggerSchedule)
			continue
		}
		if pending, ok := s.timers[name]; ok {
			pending.Stop()
		}
		name := name
		s.timers[name] = time.AfterFunc(offset, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.timers, name)
			if !s.stopped {
				s.dispatchLocked(name, TriggerSchedule)
			}
		})
	}
}

// Trigger starts a run of name now unless one is already in flight. It
// reports whether a run was started.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	return s.dispatchLocked(name, TriggerManual)
}

// InFlight reports whether name is currently running
func (s *Scheduler) InFlight(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[name]
	return ok
}

// Running returns the names currently in flight, sorted
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inFlight))
	for name := range s.inFlight {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// dispatchLocked must be called with s.mu held
func (s *Scheduler) dispatchLocked(name, trigger string) bool {
	if _, busy := s.inFlight[name]; busy {
		metrics.RecordSchedulerSkip(name)
		s.opts.Logger.Info().Str("agent", name).Str("trigger", trigger).Msg("Previous run still in flight, skipping")
		return false
	}
	s.inFlight[name] = struct{}{}
	metrics.SetSchedulerInFlight(len(s.inFlight))
	s.wg.Add(1)

	go s.execute(name, trigger)
	return true
}

func (s *Scheduler) execute(name, trigger string) {
	defer s.wg.Done()
	defer s.release(name)

	if err := s.sem.Acquire(s.acquireCtx, 1); err != nil {
		s.opts.Logger.Debug().Str("agent", name).Msg("Run abandoned before start")
		return
	}
	defer s.sem.Release(1)

	ctx := tracing.WithTrigger(context.Background(), trigger)
	ctx = tracing.NewAgentRunContext(ctx, name, "")
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	logger := tracing.LoggerFromContext(ctx, s.opts.Logger)

	start := time.Now()
	err := s.safeRun(ctx, name)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Agent run failed")
	} else {
		logger.Info().Dur("elapsed", elapsed).Msg("Agent run finished")
	}
	if s.opts.OnComplete != nil {
		s.opts.OnComplete(name, err, elapsed)
	}
}

// safeRun converts a panicking run into an error
func (s *Scheduler) safeRun(ctx context.Context, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", name, r)
		}
	}()
	return s.run(ctx, name)
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
	metrics.SetSchedulerInFlight(len(s.inFlight))
}

// Stop halts ticking, drops pending staggered wakes, and waits for in-flight
// runs up to the grace period or ctx. Runs still going after that are left
// to finish on their own; Stop reports them with ErrGraceExceeded.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancelAcquire()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.opts.Grace)
	defer grace.Stop()

	select {
	case <-done:
		s.opts.Logger.Info().Msg("Scheduler stopped")
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	running := s.Running()
	s.opts.Logger.Warn().Strs("agents", running).Msg("Grace period over with runs still in flight")
	return fmt.Errorf("%w: %v", ErrGraceExceeded, running)
}
