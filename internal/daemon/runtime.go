package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dusseau-dev/mission-control/internal/config"
	"github.com/dusseau-dev/mission-control/pkg/agent"
	"github.com/dusseau-dev/mission-control/pkg/coordination"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
)

// AuditFileName is the audit log inside <root>/logs
const AuditFileName = "mission-control.log"

// systemActor attributes audit records not caused by a specific agent
const systemActor = "system"

// Runtime holds the components every agent shares: the guard, the
// coordination store, and the model provider. It backs both the daemon and
// one-shot CLI commands.
type Runtime struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Guard    *guardrail.Guard
	Store    coordination.Store // nil when offline
	Provider agent.LLMProvider
}

// EnsureLayout creates the install root and its standard subdirectories
func EnsureLayout(root string) error {
	for _, dir := range []string{guardrail.DirAgents, guardrail.DirMemory, guardrail.DirLogs, guardrail.DirWorkspace} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// NewRuntime wires the shared components from cfg. The config must already
// be validated.
func NewRuntime(cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	if err := EnsureLayout(cfg.Root); err != nil {
		return nil, err
	}

	guard, err := guardrail.New(guardrail.Config{
		Paths: guardrail.DefaultPathPolicy(cfg.Root),
		Audit: guardrail.AuditConfig{
			Path:       filepath.Join(cfg.Root, guardrail.DirLogs, AuditFileName),
			MaxSizeMB:  cfg.Logging.MaxSize,
			MaxAgeDays: cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
			Console:    log.With().Str("component", "guardrail").Logger(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	r := &Runtime{
		Config: cfg,
		Logger: log,
		Guard:  guard,
	}

	store, err := coordination.Open(cfg.Coordination.URL, coordination.HTTPOptions{
		Token:   cfg.Coordination.Token,
		Timeout: cfg.CoordinationTimeout(),
	}, r.resolveStorePath)
	if err != nil {
		guard.Close()
		return nil, fmt.Errorf("failed to open coordination store: %w", guard.RedactError(err))
	}
	r.Store = store

	if len(cfg.AI.Profiles) > 0 {
		provider, err := agent.NewFailoverProvider(convertAuthProfiles(cfg.AI.Profiles), agent.FailoverOptions{
			MaxRetries: cfg.Model.MaxRetries,
			Logger:     log.With().Str("component", "provider").Logger(),
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create model provider: %w", err)
		}
		r.Provider = provider
	}

	mode := "offline"
	if store != nil {
		mode = "online"
	}
	log.Info().
		Str("root", guard.Root()).
		Str("coordination", mode).
		Int("profiles", len(cfg.AI.Profiles)).
		Msg("Runtime initialized")
	guard.Activity(systemActor, "runtime_started", "coordination "+mode)

	return r, nil
}

// resolveStorePath places relative SQLite paths under <root>/workspace and
// requires the result to pass containment.
func (r *Runtime) resolveStorePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = r.Guard.Path(guardrail.DirWorkspace, path)
	}
	if err := r.Guard.CheckPath(systemActor, path); err != nil {
		return "", err
	}
	return path, nil
}

// NewAgent constructs the named roster agent over the shared components
func (r *Runtime) NewAgent(name string) (*agent.Agent, error) {
	cfg := r.Config
	return agent.New(agent.Config{
		Name:     name,
		Guard:    r.Guard,
		Store:    r.Store,
		Provider: r.Provider,
		Model: agent.ModelConfig{
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
			MaxRetries:  cfg.Model.MaxRetries,
		},
		ChatRateLimit:    cfg.Limits.ChatPerMinute,
		WriteRateLimit:   cfg.Limits.WritePerMinute,
		MessageRateLimit: cfg.Limits.MessagePerMinute,
		Logger:           r.Logger,
	})
}

// Close releases the store and flushes the audit log
func (r *Runtime) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := r.Guard.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}
	return errors.Join(errs...)
}

func convertAuthProfiles(profiles []config.AIProfile) []agent.AuthProfile {
	out := make([]agent.AuthProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Model:    p.Model,
			Priority: p.Priority,
		})
	}
	return out
}
