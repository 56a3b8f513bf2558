package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dusseau-dev/mission-control/internal/metrics"
	"github.com/dusseau-dev/mission-control/internal/tracing"
	"github.com/dusseau-dev/mission-control/pkg/memory"
)

// contextAck is the assistant turn that closes the context exchange
const contextAck = "Understood. I have the recent context."

// Chat runs one conversational turn. The rate limit is checked before
// anything else; on rejection nothing else happens. Returned errors carry
// redacted messages.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	if err := a.guard.Allow(a.member.Name, ScopeChat, a.cfg.ChatRateLimit); err != nil {
		metrics.RecordChat(a.member.Name, false)
		return "", err
	}

	ctx = tracing.NewAgentRunContext(ctx, a.member.Name, a.sessionKey)
	logger := tracing.LoggerFromContext(ctx, a.logger)

	a.setState(StateRunning)
	clean := a.guard.SanitizeInput(a.member.Name, message)
	if a.guard.WarnSecrets(a.member.Name, ScopeChat, clean) {
		logger.Warn().Msg("Chat input contains a secret pattern")
	}

	a.heartbeat(ctx, memory.Truncate(clean, 120))
	defer a.markIdle(ctx)

	start := time.Now()
	response, err := a.complete(ctx, clean)
	if err != nil {
		a.setState(StateError)
		metrics.RecordChat(a.member.Name, false)
		err = a.guard.RedactError(err)
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Chat failed")
		return "", err
	}

	if a.guard.ContainsSecret(response) {
		a.guard.Security(a.member.Name, "secret_in_response", "model output redacted")
		response = a.guard.Redact(response)
	}

	a.remember(&memory.Entry{
		Timestamp: a.now().UTC(),
		Input:     clean,
		Summary:   response,
	}, false)

	a.guard.Activity(a.member.Name, "chat", fmt.Sprintf("%d chars in, %d chars out", len(clean), len(response)))
	metrics.RecordChat(a.member.Name, true)
	logger.Debug().Dur("elapsed", time.Since(start)).Msg("Chat completed")
	a.setState(StateIdle)
	return response, nil
}

// complete builds the request and calls the provider
func (a *Agent) complete(ctx context.Context, userTurn string) (string, error) {
	if a.provider == nil {
		return "", ErrNoProvider
	}

	var messages []AgentMessage
	if block := contextBlock(a.RecentMemory(a.cfg.ContextEntries)); block != "" {
		messages = append(messages,
			AgentMessage{Role: RoleUser, Content: block},
			AgentMessage{Role: RoleAssistant, Content: contextAck},
		)
	}
	messages = append(messages, AgentMessage{Role: RoleUser, Content: userTurn})

	resp, err := a.provider.Call(ctx, LLMRequest{
		Model:        a.cfg.Model.Model,
		Messages:     messages,
		Temperature:  a.cfg.Model.Temperature,
		MaxTokens:    a.cfg.Model.MaxTokens,
		SystemPrompt: a.systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelCall, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
