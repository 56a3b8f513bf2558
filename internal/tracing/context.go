// Package tracing carries run correlation ids through contexts and into
// log lines.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RunIDKey is the context key for run ID
	RunIDKey ContextKey = "run_id"
	// AgentKey is the context key for the agent name
	AgentKey ContextKey = "agent"
	// SessionKeyKey is the context key for session key
	SessionKeyKey ContextKey = "session_key"
	// TriggerKey is the context key for what started the run
	TriggerKey ContextKey = "trigger"
)

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithAgent adds an agent name to the context
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, AgentKey, agent)
}

// WithSessionKey adds a session key to the context
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, SessionKeyKey, sessionKey)
}

// WithTrigger records what started the run ("schedule", "cli", ...)
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, TriggerKey, trigger)
}

func value(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	return value(ctx, RunIDKey)
}

// GetAgent retrieves the agent name from the context
func GetAgent(ctx context.Context) string {
	return value(ctx, AgentKey)
}

// GetSessionKey retrieves the session key from the context
func GetSessionKey(ctx context.Context) string {
	return value(ctx, SessionKeyKey)
}

// GetTrigger retrieves the trigger from the context
func GetTrigger(ctx context.Context) string {
	return value(ctx, TriggerKey)
}

// NewAgentRunContext starts a run for agent, minting a run ID unless ctx
// already carries one.
func NewAgentRunContext(ctx context.Context, agent, sessionKey string) context.Context {
	if GetRunID(ctx) == "" {
		ctx = WithRunID(ctx, NewRunID())
	}
	ctx = WithAgent(ctx, agent)
	if sessionKey != "" {
		ctx = WithSessionKey(ctx, sessionKey)
	}
	return ctx
}

// LoggerFromContext returns base enriched with the run fields in ctx
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	fields := base.With()
	if v := GetRunID(ctx); v != "" {
		fields = fields.Str("run_id", v)
	}
	if v := GetAgent(ctx); v != "" {
		fields = fields.Str("agent", v)
	}
	if v := GetSessionKey(ctx); v != "" {
		fields = fields.Str("session_key", v)
	}
	if v := GetTrigger(ctx); v != "" {
		fields = fields.Str("trigger", v)
	}
	return fields.Logger()
}
