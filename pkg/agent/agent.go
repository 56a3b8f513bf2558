// Package agent is the per-agent runtime: identity, persisted memory, and
// role text composed into model requests, plus guarded task and message
// operations against the coordination store.
//
// Every boundary crossing goes through a shared guardrail.Guard: inbound
// text is sanitized, outbound writes are checked for secrets, calls are
// rate limited per agent, and errors are redacted before they are returned.
// A nil coordination store puts the agent in offline mode where store
// operations are no-ops.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{Name: "jarvis", Guard: g, Provider: p})
//	result, _ := a.Run(ctx, "")
//	_ = result
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusseau-dev/mission-control/pkg/coordination"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
	"github.com/dusseau-dev/mission-control/pkg/memory"
)

// Default per-minute ceilings and context size
const (
	DefaultChatRateLimit    = 30
	DefaultWriteRateLimit   = 60
	DefaultMessageRateLimit = 20
	DefaultContextEntries   = 5
)

// Rate-limit scopes; keys are "<scope>:<agent>"
const (
	ScopeChat    = "chat"
	ScopeWrite   = "write"
	ScopeMessage = "message"
)

// Config holds agent construction parameters
type Config struct {
	Name     string
	Guard    *guardrail.Guard
	Store    coordination.Store // nil for offline mode
	Provider LLMProvider        // nil disables Chat
	Model    ModelConfig

	ChatRateLimit    int
	WriteRateLimit   int
	MessageRateLimit int
	ContextEntries   int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Agent is one named member of the squad
type Agent struct {
	member     Member
	sessionKey string
	cfg        Config

	guard    *guardrail.Guard
	store    coordination.Store
	provider LLMProvider
	logger   zerolog.Logger
	now      func() time.Time

	persona      RoleText
	manual       RoleText
	systemPrompt string

	memStore *memory.Store
	memMu    sync.Mutex
	mem      *memory.Memory

	stateMu sync.Mutex
	state   State
}

// New validates the identity, loads role text and memory, and returns a
// ready agent. Identity failures happen before anything touches disk.
func New(cfg Config) (*Agent, error) {
	if cfg.Guard == nil {
		return nil, errors.New("agent: guard is required")
	}
	if err := cfg.Guard.ValidateName("system", cfg.Name); err != nil {
		return nil, err
	}
	member, ok := LookupMember(cfg.Name)
	if !ok {
		cfg.Guard.Security("system", "unknown_agent", fmt.Sprintf("rejected name %q", cfg.Name))
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, cfg.Name)
	}

	applyDefaults(&cfg)
	logger := cfg.Logger.With().Str("agent", member.Name).Logger()

	a := &Agent{
		member:     member,
		sessionKey: SessionKey(member.Name),
		cfg:        cfg,
		guard:      cfg.Guard,
		store:      cfg.Store,
		provider:   cfg.Provider,
		logger:     logger,
		now:        cfg.Now,
		state:      StateConstructing,
	}

	a.persona = loadRoleText(a.guard, member.Name,
		a.guard.Path(guardrail.DirAgents, member.Name, PersonaFile), defaultPersona(member))
	a.manual = loadRoleText(a.guard, member.Name,
		a.guard.Path(guardrail.DirAgents, ManualFile), defaultManual)
	for label, rt := range map[string]RoleText{"persona": a.persona, "manual": a.manual} {
		if !rt.Loaded() {
			logger.Warn().Str("role", label).Str("reason", rt.Reason).Msg("Using built-in role text")
		}
	}
	a.systemPrompt = BuildSystemPrompt(member, a.sessionKey, a.persona, a.manual)

	memStore, err := memory.NewStore(a.guard, member.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMemoryLocation, err)
	}
	a.memStore = memStore
	a.mem = memStore.Load()

	a.guard.Activity(member.Name, "agent_ready",
		fmt.Sprintf("persona %s, manual %s, %d memories, offline=%t", a.persona, a.manual, a.mem.Len(), a.Offline()))
	a.setState(StateReady)
	return a, nil
}

func applyDefaults(cfg *Config) {
	defaults := DefaultModelConfig()
	if cfg.Model.Model == "" {
		cfg.Model.Model = defaults.Model
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = defaults.MaxTokens
	}
	if cfg.Model.Temperature <= 0 {
		cfg.Model.Temperature = defaults.Temperature
	}
	if cfg.ChatRateLimit == 0 {
		cfg.ChatRateLimit = DefaultChatRateLimit
	}
	if cfg.WriteRateLimit == 0 {
		cfg.WriteRateLimit = DefaultWriteRateLimit
	}
	if cfg.MessageRateLimit == 0 {
		cfg.MessageRateLimit = DefaultMessageRateLimit
	}
	if cfg.ContextEntries <= 0 {
		cfg.ContextEntries = DefaultContextEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// Name returns the agent's roster name
func (a *Agent) Name() string {
	return a.member.Name
}

// Title returns the agent's roster title
func (a *Agent) Title() string {
	return a.member.Title
}

// SessionKey returns the agent's session key
func (a *Agent) SessionKey() string {
	return a.sessionKey
}

// SystemPrompt returns the prompt assembled at construction
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// Persona returns the persona text and where it came from
func (a *Agent) Persona() RoleText {
	return a.persona
}

// Manual returns the operating manual and where it came from
func (a *Agent) Manual() RoleText {
	return a.manual
}

// Offline reports whether no coordination store is configured
func (a *Agent) Offline() bool {
	return a.store == nil
}

// State returns the current lifecycle state
func (a *Agent) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.state = s
}

// MemoryLen returns the number of remembered exchanges
func (a *Agent) MemoryLen() int {
	a.memMu.Lock()
	defer a.memMu.Unlock()
	return a.mem.Len()
}

// RecentMemory returns up to n of the newest remembered exchanges
func (a *Agent) RecentMemory(n int) []memory.Entry {
	a.memMu.Lock()
	defer a.memMu.Unlock()
	return a.mem.Recent(n)
}

// remember appends a redacted exchange (and optionally the run stamp) and
// persists.
func (a *Agent) remember(entry *memory.Entry, markRun bool) {
	a.memMu.Lock()
	defer a.memMu.Unlock()

	if entry != nil {
		e := *entry
		e.Input = a.guard.Redact(e.Input)
		e.Summary = a.guard.Redact(e.Summary)
		a.mem.Append(e)
	}
	if markRun {
		a.mem.MarkRun(a.now())
	}
	if err := a.memStore.Save(a.mem); err != nil {
		a.logger.Warn().Str("error", a.guard.Redact(err.Error())).Msg("Memory not persisted")
	}
}

// heartbeat marks the agent active; failures only log
func (a *Agent) heartbeat(ctx context.Context, currentTask string) {
	if a.store == nil {
		return
	}
	if err := a.store.Heartbeat(ctx, a.member.Name, a.sessionKey, a.guard.Redact(currentTask)); err != nil {
		a.logger.Warn().Str("error", a.guard.Redact(err.Error())).Msg("Heartbeat failed")
	}
}

// markIdle marks the agent idle; it ignores cancellation of ctx so a
// cancelled run still clears its active status.
func (a *Agent) markIdle(ctx context.Context) {
	if a.store == nil {
		return
	}
	if err := a.store.SetIdle(context.WithoutCancel(ctx), a.member.Name); err != nil {
		a.logger.Warn().Str("error", a.guard.Redact(err.Error())).Msg("Set idle failed")
	}
}
