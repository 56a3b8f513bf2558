package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds every run open until released
type blockingRunner struct {
	mu       sync.Mutex
	started  map[string]int
	active   map[string]int
	overlap  atomic.Bool
	release  chan struct{}
	startedC chan string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started:  make(map[string]int),
		active:   make(map[string]int),
		release:  make(chan struct{}),
		startedC: make(chan string, 64),
	}
}

func (b *blockingRunner) run(ctx context.Context, name string) error {
	b.mu.Lock()
	b.started[name]++
	b.active[name]++
	if b.active[name] > 1 {
		b.overlap.Store(true)
	}
	b.mu.Unlock()
	b.startedC <- name

	select {
	case <-b.release:
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.active[name]--
	b.mu.Unlock()
	return nil
}

func (b *blockingRunner) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started[name]
}

func waitStarted(t *testing.T, c <-chan string) string {
	t.Helper()
	select {
	case name := <-c:
		return name
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
		return ""
	}
}

func newTestScheduler(t *testing.T, run RunFunc, opts Options) *Scheduler {
	t.Helper()
	opts.Logger = zerolog.Nop()
	s, err := New(run, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Options{Agents: map[string]time.Duration{"jarvis": 0}})
	assert.Error(t, err)

	_, err = New(func(context.Context, string) error { return nil }, Options{})
	assert.Error(t, err)

	_, err = New(func(context.Context, string) error { return nil }, Options{
		Agents: map[string]time.Duration{"jarvis": -time.Second},
	})
	assert.Error(t, err)
}

func TestTriggerNoOverlap(t *testing.T) {
	runner := newBlockingRunner()
	s := newTestScheduler(t, runner.run, Options{Agents: map[string]time.Duration{"jarvis": 0}})

	require.True(t, s.Trigger("jarvis"))
	waitStarted(t, runner.startedC)
	assert.True(t, s.InFlight("jarvis"))

	assert.False(t, s.Trigger("jarvis"), "second run must be skipped while the first is in flight")
	s.Tick()

	close(runner.release)
	require.Eventually(t, func() bool { return !s.InFlight("jarvis") }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, runner.count("jarvis"))
	assert.False(t, runner.overlap.Load())
}

func TestDifferentAgentsRunConcurrently(t *testing.T) {
	runner := newBlockingRunner()
	s := newTestScheduler(t, runner.run, Options{Agents: map[string]time.Duration{"jarvis": 0, "shuri": 0}})

	require.True(t, s.Trigger("jarvis"))
	require.True(t, s.Trigger("shuri"))
	waitStarted(t, runner.startedC)
	waitStarted(t, runner.startedC)

	assert.Equal(t, []string{"jarvis", "shuri"}, s.Running())
	close(runner.release)
}

func TestMarkerClearedAfterError(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context, name string) error {
		calls.Add(1)
		return errors.New("model unavailable")
	}, Options{Agents: map[string]time.Duration{"fury": 0}})

	require.True(t, s.Trigger("fury"))
	require.Eventually(t, func() bool { return !s.InFlight("fury") }, 2*time.Second, 5*time.Millisecond)
	require.True(t, s.Trigger("fury"))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestMarkerClearedAfterPanic(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	s := newTestScheduler(t, func(ctx context.Context, name string) error {
		panic("boom")
	}, Options{
		Agents: map[string]time.Duration{"loki": 0},
		OnComplete: func(name string, err error, elapsed time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		},
	})

	require.True(t, s.Trigger("loki"))
	require.Eventually(t, func() bool { return !s.InFlight("loki") }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "panicked")
}

func TestTickHonorsStagger(t *testing.T) {
	var mu sync.Mutex
	startedAt := map[string]time.Time{}
	s := newTestScheduler(t, func(ctx context.Context, name string) error {
		mu.Lock()
		defer mu.Unlock()
		startedAt[name] = time.Now()
		return nil
	}, Options{Agents: map[string]time.Duration{
		"jarvis": 0,
		"shuri":  150 * time.Millisecond,
	}})

	begin := time.Now()
	s.Tick()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(startedAt) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, startedAt["jarvis"].Sub(begin), 100*time.Millisecond)
	assert.GreaterOrEqual(t, startedAt["shuri"].Sub(begin), 150*time.Millisecond)
}

func TestStopDropsPendingWakes(t *testing.T) {
	var calls atomic.Int32
	s, err := New(func(ctx context.Context, name string) error {
		calls.Add(1)
		return nil
	}, Options{Agents: map[string]time.Duration{"wong": 100 * time.Millisecond}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Tick()
	require.NoError(t, s.Stop(context.Background()))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, s.Trigger("wong"))
	assert.ErrorIs(t, s.Start(), ErrStopped)
}

func TestStopWaitsForRuns(t *testing.T) {
	runner := newBlockingRunner()
	s, err := New(runner.run, Options{
		Agents: map[string]time.Duration{"pepper": 0},
		Grace:  2 * time.Second,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	require.True(t, s.Trigger("pepper"))
	waitStarted(t, runner.startedC)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(runner.release)
	}()
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.InFlight("pepper"))
}

func TestStopGraceExceeded(t *testing.T) {
	runner := newBlockingRunner()
	s, err := New(runner.run, Options{
		Agents: map[string]time.Duration{"quill": 0},
		Grace:  50 * time.Millisecond,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	require.True(t, s.Trigger("quill"))
	waitStarted(t, runner.startedC)

	err = s.Stop(context.Background())
	require.ErrorIs(t, err, ErrGraceExceeded)
	assert.Contains(t, err.Error(), "quill")

	// The run is not cancelled; it keeps going until it finishes itself.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, s.InFlight("quill"))

	close(runner.release)
	require.Eventually(t, func() bool { return !s.InFlight("quill") }, 2*time.Second, 5*time.Millisecond)
}

func TestRunContextHasNoDeadlineByDefault(t *testing.T) {
	deadlines := make(chan bool, 1)
	s := newTestScheduler(t, func(ctx context.Context, name string) error {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return nil
	}, Options{Agents: map[string]time.Duration{"fury": 0}})

	require.True(t, s.Trigger("fury"))
	select {
	case hasDeadline := <-deadlines:
		assert.False(t, hasDeadline)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}
}

func TestRunTimeoutIsOptIn(t *testing.T) {
	runner := newBlockingRunner()
	done := make(chan error, 1)
	s := newTestScheduler(t, runner.run, Options{
		Agents:     map[string]time.Duration{"vision": 0},
		RunTimeout: 30 * time.Millisecond,
		OnComplete: func(name string, err error, elapsed time.Duration) { done <- err },
	})

	require.True(t, s.Trigger("vision"))
	waitStarted(t, runner.startedC)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run deadline was not applied")
	}
	require.Eventually(t, func() bool { return !s.InFlight("vision") }, time.Second, 5*time.Millisecond)

	_, err := New(runner.run, Options{
		Agents:     map[string]time.Duration{"vision": 0},
		RunTimeout: -time.Second,
	})
	assert.Error(t, err)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	release := make(chan struct{})
	s := newTestScheduler(t, func(ctx context.Context, name string) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	}, Options{
		Agents:        map[string]time.Duration{"a": 0, "b": 0, "c": 0},
		MaxConcurrent: 1,
	})

	s.Tick()
	require.Eventually(t, func() bool { return active.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())

	close(release)
	require.Eventually(t, func() bool { return len(s.Running()) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())
}

func TestStartImmediateTick(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context, name string) error {
		calls.Add(1)
		return nil
	}, Options{
		Agents:    map[string]time.Duration{"jarvis": 0},
		Interval:  time.Hour,
		Immediate: true,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}
