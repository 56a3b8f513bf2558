package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusseau-dev/mission-control/internal/config"
	"github.com/dusseau-dev/mission-control/internal/logger"
	"github.com/dusseau-dev/mission-control/pkg/agent"
	"github.com/dusseau-dev/mission-control/pkg/coordination"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
	"github.com/dusseau-dev/mission-control/pkg/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Scheduler.Immediate = false
	cfg.Scheduler.WakeIntervalMinutes = 60
	cfg.Scheduler.GraceSeconds = 2
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Output: os.Stderr})
	require.NoError(t, err)
	return log
}

func TestEnsureLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureLayout(root))

	for _, dir := range []string{guardrail.DirAgents, guardrail.DirMemory, guardrail.DirLogs, guardrail.DirWorkspace} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
}

func TestNewRuntimeOffline(t *testing.T) {
	cfg := testConfig(t)

	rt, err := NewRuntime(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Store)
	assert.Nil(t, rt.Provider)

	a, err := rt.NewAgent("wanda")
	require.NoError(t, err)
	result, err := a.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionIdle, result.Action)
}

func TestNewRuntimeSQLiteUnderWorkspace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Coordination.URL = "sqlite://board.db"
	cfg.AI.Profiles = []config.AIProfile{{ID: "main", Provider: "anthropic", APIKey: "sk-ant-test", Priority: 1}}

	rt, err := NewRuntime(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Store)
	require.NotNil(t, rt.Provider)
	assert.FileExists(t, filepath.Join(rt.Guard.Root(), guardrail.DirWorkspace, "board.db"))

	id, err := rt.Store.CreateTask(context.Background(), coordination.TaskInput{Title: "hello", CreatedBy: "jarvis"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestNewRuntimeRejectsEscapingStorePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Coordination.URL = "sqlite://../../outside.db"

	_, err := NewRuntime(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, guardrail.ErrPathDenied)
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)

	for _, name := range agent.RosterNames() {
		_, ok := d.Agent(name)
		assert.True(t, ok, name)
	}
	assert.False(t, d.Status().Running)

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())
	assert.True(t, d.Status().Running)

	require.True(t, d.Scheduler().Trigger("wanda"))
	require.Eventually(t, func() bool { return !d.Scheduler().InFlight("wanda") }, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(cfg.Root, guardrail.DirMemory, "wanda", memory.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "last_run")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Error(t, d.Stop(ctx))
	assert.False(t, d.Status().Running)

	audit, err := os.ReadFile(filepath.Join(cfg.Root, guardrail.DirLogs, AuditFileName))
	require.NoError(t, err)
	assert.Contains(t, string(audit), "runtime_started")
	assert.Contains(t, string(audit), "agent_ready")
}

func TestRoleWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "loki"), 0o700))

	var mu sync.Mutex
	var changed []string
	w, err := NewRoleWatcher(RoleWatcherConfig{
		Dir:                dir,
		StabilityThreshold: 20 * time.Millisecond,
		Logger:             zerolog.Nop(),
		OnChange: func(path string, op fsnotify.Op) {
			mu.Lock()
			defer mu.Unlock()
			changed = append(changed, filepath.Base(path))
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "loki", "notes.txt"), []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loki", ".SOUL.md.swp"), []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loki", "SOUL.md"), []byte("new persona"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, name := range changed {
		assert.Equal(t, "SOUL.md", name)
	}
}

func TestConvertAuthProfiles(t *testing.T) {
	out := convertAuthProfiles([]config.AIProfile{
		{ID: "a", Provider: "anthropic", APIKey: "k", BaseURL: "http://proxy", Model: "m", Priority: 3},
	})
	require.Len(t, out, 1)
	assert.Equal(t, agent.AuthProfile{ID: "a", Provider: "anthropic", APIKey: "k", BaseURL: "http://proxy", Model: "m", Priority: 3}, out[0])
}
