package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusseau-dev/mission-control/internal/metrics"
	"github.com/dusseau-dev/mission-control/internal/tracing"
	"github.com/dusseau-dev/mission-control/pkg/coordination"
)

// Run outcomes recorded in metrics
const (
	outcomeIdle      = "idle"
	outcomeResponded = "responded"
	outcomeError     = "error"
)

// Run performs one autonomous turn. With an explicit task it runs a single
// chat turn framed as a new task. Without one it checks the coordination
// store and, when nothing is pending, returns an idle result without
// calling the model.
func (a *Agent) Run(ctx context.Context, task string) (result RunResult, err error) {
	start := time.Now()
	outcome := outcomeError
	defer func() {
		metrics.RecordAgentRun(a.member.Name, outcome, time.Since(start))
	}()

	ctx = tracing.NewAgentRunContext(ctx, a.member.Name, a.sessionKey)
	logger := tracing.LoggerFromContext(ctx, a.logger)

	if strings.TrimSpace(task) != "" {
		clean := a.guard.SanitizeInput(a.member.Name, task)
		reply, err := a.Chat(ctx, "New task: "+clean)
		if err != nil {
			return RunResult{}, err
		}
		outcome = outcomeResponded
		return RunResult{Action: ActionResponded, Message: reply}, nil
	}

	a.heartbeat(ctx, "checking for work")
	defer a.markIdle(ctx)

	var (
		tasks    []coordination.Task
		messages []coordination.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = a.FetchAssignedTasks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = a.FetchMessages(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return RunResult{}, a.guard.RedactError(err)
	}

	pending := activeTasks(tasks)
	if len(pending) == 0 && len(messages) == 0 {
		a.remember(nil, true)
		a.setState(StateIdle)
		outcome = outcomeIdle
		logger.Debug().Msg("No pending work")
		return RunResult{Action: ActionIdle, Message: IdleMessage}, nil
	}

	logger.Info().Int("tasks", len(pending)).Int("messages", len(messages)).Msg("Working on pending items")
	reply, err := a.Chat(ctx, workPrompt(pending, messages))
	if err != nil {
		return RunResult{}, err
	}
	a.remember(nil, true)
	outcome = outcomeResponded
	return RunResult{Action: ActionResponded, Message: reply}, nil
}

func activeTasks(tasks []coordination.Task) []coordination.Task {
	var out []coordination.Task
	for _, t := range tasks {
		if t.Status.Active() {
			out = append(out, t)
		}
	}
	return out
}

// workPrompt enumerates pending messages and tasks. Fields arrive sanitized
// from the fetch calls.
func workPrompt(tasks []coordination.Task, messages []coordination.Message) string {
	var b strings.Builder
	b.WriteString("Time to check in. Here is what is waiting for you.\n")

	if len(messages) > 0 {
		b.WriteString("\n## Unread Messages\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "- From %s: %s\n", m.From, m.Text)
		}
	}

	if len(tasks) > 0 {
		b.WriteString("\n## Your Tasks\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "- [%s] %s (id: %s", t.Status, t.Title, t.ID)
			if t.Priority != "" {
				fmt.Fprintf(&b, ", priority: %s", t.Priority)
			}
			b.WriteString(")\n")
			if t.Description != "" {
				fmt.Fprintf(&b, "  %s\n", t.Description)
			}
		}
	}

	b.WriteString("\nDecide what to work on next, act on it, and report progress.")
	return b.String()
}
