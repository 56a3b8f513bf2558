package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusseau-dev/mission-control/pkg/coordination"
)

// storeUnavailable logs a degraded store call
func (a *Agent) storeUnavailable(op string, err error) {
	a.logger.Warn().Str("op", op).Str("error", a.guard.Redact(err.Error())).Msg("Coordination store unavailable, continuing")
	a.guard.Activity(a.member.Name, "store_unavailable", op)
}

// FetchAssignedTasks returns the tasks assigned to this agent with their
// text fields sanitized. Offline or on store failure it returns nothing.
func (a *Agent) FetchAssignedTasks(ctx context.Context) ([]coordination.Task, error) {
	if a.store == nil {
		return nil, nil
	}
	tasks, err := a.store.ListTasks(ctx, coordination.TaskFilter{AssignedTo: a.member.Name})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.storeUnavailable("tasks.list", err)
		return nil, nil
	}

	for i := range tasks {
		tasks[i].Title = a.guard.SanitizeInput(a.member.Name, tasks[i].Title)
		tasks[i].Description = a.guard.SanitizeInput(a.member.Name, tasks[i].Description)
	}
	a.guard.Activity(a.member.Name, "tasks_fetched", fmt.Sprintf("%d tasks", len(tasks)))
	return tasks, nil
}

// FetchMessages returns unread messages for this agent with their text
// sanitized. Offline or on store failure it returns nothing.
func (a *Agent) FetchMessages(ctx context.Context) ([]coordination.Message, error) {
	if a.store == nil {
		return nil, nil
	}
	msgs, err := a.store.UnreadMessages(ctx, a.member.Name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.storeUnavailable("messages.listUnreadFor", err)
		return nil, nil
	}

	for i := range msgs {
		msgs[i].Text = a.guard.SanitizeInput(a.member.Name, msgs[i].Text)
	}
	a.guard.Activity(a.member.Name, "messages_fetched", fmt.Sprintf("%d messages", len(msgs)))
	return msgs, nil
}

// CreateTask creates a task on behalf of this agent and returns its id. A
// secret in any text field fails the call before the store is touched.
func (a *Agent) CreateTask(ctx context.Context, input coordination.TaskInput) (string, error) {
	input.Title = a.guard.SanitizeInput(a.member.Name, input.Title)
	input.Description = a.guard.SanitizeInput(a.member.Name, input.Description)
	input.Priority = a.guard.SanitizeInput(a.member.Name, input.Priority)
	if strings.TrimSpace(input.Title) == "" {
		return "", fmt.Errorf("create task: empty title")
	}
	if err := a.guard.RejectSecrets(a.member.Name, "create_task", map[string]string{
		"title":       input.Title,
		"description": input.Description,
		"priority":    input.Priority,
	}); err != nil {
		return "", err
	}
	for _, assignee := range input.Assignees {
		if err := a.validateAgentRef(assignee); err != nil {
			return "", err
		}
	}
	input.CreatedBy = a.member.Name

	if a.store == nil {
		return "", nil
	}
	if err := a.guard.Allow(a.member.Name, ScopeWrite, a.cfg.WriteRateLimit); err != nil {
		return "", err
	}

	id, err := a.store.CreateTask(ctx, input)
	if err != nil {
		a.storeUnavailable("tasks.create", err)
		return "", nil
	}
	a.guard.Activity(a.member.Name, "task_created", fmt.Sprintf("%s: %s", id, input.Title))
	return id, nil
}

// UpdateTask changes task id on behalf of this agent
func (a *Agent) UpdateTask(ctx context.Context, id string, patch coordination.TaskPatch) error {
	fields := map[string]string{"id": id}
	if patch.Title != nil {
		clean := a.guard.SanitizeInput(a.member.Name, *patch.Title)
		patch.Title = &clean
		fields["title"] = clean
	}
	if patch.Description != nil {
		clean := a.guard.SanitizeInput(a.member.Name, *patch.Description)
		patch.Description = &clean
		fields["description"] = clean
	}
	if patch.Priority != nil {
		clean := a.guard.SanitizeInput(a.member.Name, *patch.Priority)
		patch.Priority = &clean
		fields["priority"] = clean
	}
	if err := a.guard.RejectSecrets(a.member.Name, "update_task", fields); err != nil {
		return err
	}
	for _, assignee := range patch.Assignees {
		if err := a.validateAgentRef(assignee); err != nil {
			return err
		}
	}

	if a.store == nil || patch.Empty() {
		return nil
	}
	if err := a.guard.Allow(a.member.Name, ScopeWrite, a.cfg.WriteRateLimit); err != nil {
		return err
	}

	if err := a.store.UpdateTask(ctx, id, patch, a.member.Name); err != nil {
		a.storeUnavailable("tasks.update", err)
		return nil
	}
	a.guard.Activity(a.member.Name, "task_updated", id)
	return nil
}

// AddComment posts a comment on task id as this agent
func (a *Agent) AddComment(ctx context.Context, taskID, text string) error {
	clean := a.guard.SanitizeInput(a.member.Name, text)
	if err := a.guard.RejectSecrets(a.member.Name, "add_comment", map[string]string{
		"task_id": taskID,
		"text":    clean,
	}); err != nil {
		return err
	}

	if a.store == nil {
		return nil
	}
	if err := a.guard.Allow(a.member.Name, ScopeWrite, a.cfg.WriteRateLimit); err != nil {
		return err
	}

	if err := a.store.AddComment(ctx, taskID, a.member.Name, clean); err != nil {
		a.storeUnavailable("tasks.addComment", err)
		return nil
	}
	a.guard.Activity(a.member.Name, "comment_added", taskID)
	return nil
}

// SendMessage sends text to a roster member or to Broadcast
func (a *Agent) SendMessage(ctx context.Context, to, text string) error {
	if to != Broadcast {
		if err := a.validateAgentRef(to); err != nil {
			return err
		}
	}
	clean := a.guard.SanitizeInput(a.member.Name, text)
	if err := a.guard.RejectSecrets(a.member.Name, "send_message", map[string]string{"text": clean}); err != nil {
		return err
	}

	if a.store == nil {
		return nil
	}
	if err := a.guard.Allow(a.member.Name, ScopeMessage, a.cfg.MessageRateLimit); err != nil {
		return err
	}

	if err := a.store.SendMessage(ctx, a.member.Name, to, clean); err != nil {
		a.storeUnavailable("messages.send", err)
		return nil
	}
	a.guard.Activity(a.member.Name, "message_sent", "to "+to)
	return nil
}

// validateAgentRef checks a name another agent is referred to by
func (a *Agent) validateAgentRef(name string) error {
	if err := a.guard.ValidateName(a.member.Name, name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	if !IsRosterMember(name) {
		a.guard.Security(a.member.Name, "unknown_recipient", name)
		return fmt.Errorf("%w: %s is not on the roster", ErrInvalidRecipient, name)
	}
	return nil
}
