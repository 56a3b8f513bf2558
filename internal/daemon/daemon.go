package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dusseau-dev/mission-control/internal/config"
	"github.com/dusseau-dev/mission-control/internal/logger"
	"github.com/dusseau-dev/mission-control/internal/metrics"
	"github.com/dusseau-dev/mission-control/internal/tracing"
	"github.com/dusseau-dev/mission-control/pkg/agent"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
	"github.com/dusseau-dev/mission-control/pkg/memory"
	"github.com/dusseau-dev/mission-control/pkg/scheduler"
)

// Daemon runs the whole roster on the wake schedule
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	log     zerolog.Logger
	runtime *Runtime

	agents    map[string]*agent.Agent
	scheduler *scheduler.Scheduler
	watcher   *RoleWatcher
	metrics   *http.Server

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status is a snapshot of the daemon
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	InFlight  []string
}

// New creates a daemon and constructs every roster agent. Any agent that
// fails construction fails the daemon.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	metrics.EnsureRegistered()
	zl := log.GetZerolog()

	rt, err := NewRuntime(cfg, zl)
	if err != nil {
		return nil, err
	}
	return newWithRuntime(cfg, log, rt)
}

func newWithRuntime(cfg *config.Config, log *logger.Logger, rt *Runtime) (*Daemon, error) {
	d := &Daemon{
		config:  cfg,
		logger:  log,
		log:     log.GetZerolog(),
		runtime: rt,
		agents:  make(map[string]*agent.Agent, len(agent.Roster)),
	}

	for _, m := range agent.Roster {
		a, err := rt.NewAgent(m.Name)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create agent %s: %w", m.Name, err)
		}
		d.agents[m.Name] = a
	}

	sched, err := scheduler.New(d.runAgent, scheduler.Options{
		Agents:        agent.StaggerOffsets(),
		Interval:      cfg.WakeInterval(),
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		Grace:         cfg.Grace(),
		RunTimeout:    cfg.RunTimeout(),
		Immediate:     cfg.Scheduler.Immediate,
		Logger:        d.log.With().Str("component", "scheduler").Logger(),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = sched

	return d, nil
}

// runAgent is the scheduler's unit of work
func (d *Daemon) runAgent(ctx context.Context, name string) error {
	a, ok := d.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", agent.ErrUnknownAgent, name)
	}

	result, err := a.Run(ctx, "")
	if err != nil {
		return err
	}
	logger := tracing.LoggerFromContext(ctx, d.log)
	logger.Info().
		Str("action", result.Action).
		Str("reply", d.runtime.Guard.Redact(memory.Truncate(result.Message, 200))).
		Msg("Agent woke")
	return nil
}

// Start starts the scheduler and supporting services
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.log.Info().Int("agents", len(d.agents)).Dur("interval", d.config.WakeInterval()).Msg("Starting Mission Control")

	if addr := d.config.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		d.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := d.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error().Err(err).Str("addr", addr).Msg("Metrics listener failed")
			}
		}()
		d.log.Info().Str("addr", addr).Msg("Metrics listener started")
	}

	watcher, err := NewRoleWatcher(RoleWatcherConfig{
		Dir:    d.runtime.Guard.Path(guardrail.DirAgents),
		Logger: d.log.With().Str("component", "watcher").Logger(),
		OnChange: func(path string, op fsnotify.Op) {
			d.runtime.Guard.Activity(systemActor, "role_file_changed", fmt.Sprintf("%s %s", op, path))
		},
	})
	if err == nil {
		err = watcher.Start()
	}
	if err != nil {
		d.log.Warn().Err(err).Msg("Role file watcher unavailable")
	} else {
		d.watcher = watcher
	}

	if err := d.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.log.Info().Msg("Mission Control started")
	return nil
}

// Stop stops ticking, waits for in-flight runs up to the grace period, and
// releases shared components.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.log.Info().Msg("Stopping Mission Control")

	var errs []error
	if err := d.scheduler.Stop(ctx); err != nil {
		d.log.Error().Err(err).Msg("Scheduler did not stop cleanly")
		errs = append(errs, err)
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop role watcher")
		}
	}

	if d.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metrics.Shutdown(shutdownCtx); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop metrics listener")
		}
		cancel()
	}

	d.runtime.Guard.Activity(systemActor, "runtime_stopped", "")
	if err := d.runtime.Close(); err != nil {
		d.log.Error().Err(err).Msg("Failed to release runtime")
		errs = append(errs, err)
	}

	d.log.Info().Msg("Mission Control stopped")
	return errors.Join(errs...)
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.InFlight = d.scheduler.Running()
	}
	return status
}

// Wait blocks until SIGINT or SIGTERM and then stops the daemon
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.log.Info().Str("signal", sig.String()).Msg("Received signal")

	ctx, cancel := context.WithTimeout(context.Background(), d.config.Grace()+5*time.Second)
	defer cancel()
	return d.Stop(ctx)
}

// Agent returns the named agent
func (d *Daemon) Agent(name string) (*agent.Agent, bool) {
	a, ok := d.agents[name]
	return a, ok
}

// Scheduler returns the scheduler
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}
