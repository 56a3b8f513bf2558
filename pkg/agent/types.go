package agent

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnknownAgent is returned for valid names outside the roster
	ErrUnknownAgent = errors.New("agent is not on the roster")

	// ErrMemoryLocation is returned when the memory directory fails containment
	ErrMemoryLocation = errors.New("memory location rejected")

	// ErrEmptyResponse is returned when the model returns no usable text
	ErrEmptyResponse = errors.New("empty model response")

	// ErrModelCall is returned when every provider attempt failed
	ErrModelCall = errors.New("model call failed")

	// ErrNoProvider is returned by Chat when no model provider is configured
	ErrNoProvider = errors.New("no model provider configured")

	// ErrInvalidRecipient is returned for message recipients that are
	// neither roster members nor the broadcast value
	ErrInvalidRecipient = errors.New("invalid message recipient")
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AgentMessage is one role-tagged turn sent to the model
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ModelConfig configures model requests
type ModelConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	MaxRetries  int     `json:"max_retries,omitempty"`
}

// DefaultModelConfig returns default model configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "claude-sonnet-4-20250514",
		Temperature: 0.7,
		MaxTokens:   1024,
		MaxRetries:  3,
	}
}

// AuthProfile represents credentials for one model provider
type AuthProfile struct {
	ID            string `json:"id" mapstructure:"id"`
	Provider      string `json:"provider" mapstructure:"provider"` // "anthropic", "openai"
	APIKey        string `json:"api_key" mapstructure:"api_key"`
	BaseURL       string `json:"base_url,omitempty" mapstructure:"base_url"`
	Model         string `json:"model,omitempty" mapstructure:"model"` // overrides ModelConfig.Model
	Priority      int    `json:"priority" mapstructure:"priority"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty" mapstructure:"-"`
	FailureCount  int    `json:"failure_count" mapstructure:"-"`
}

// RunResult is the outcome of an autonomous turn
type RunResult struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Run actions
const (
	ActionIdle      = "idle"
	ActionResponded = "responded"
)

// IdleMessage is the message of an idle RunResult
const IdleMessage = "No pending work."

// State is the lifecycle state of an Agent
type State int

const (
	StateConstructing State = iota
	StateReady
	StateRunning
	StateIdle
	StateError
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsRetryableError checks if a provider error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"econnreset", "etimedout", "connection refused", "connection reset", "timeout",
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504", "529",
	} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}
	return false
}

// backoff returns the delay before retry attempt n (0-based): 1s, 2s, 4s...
func backoff(attempt int, base time.Duration) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return base * time.Duration(1<<attempt)
}
