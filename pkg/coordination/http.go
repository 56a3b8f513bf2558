package coordination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var _ Store = (*HTTPStore)(nil)

// HTTPOptions configures an HTTPStore
type HTTPOptions struct {
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPStore talks to a remote store exposing POST /api/query and
// POST /api/mutation. Requests carry {path, args, format}; responses are
// an envelope {status, value, errorMessage}.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStore creates a client for baseURL
func NewHTTPStore(baseURL string, opts HTTPOptions) (*HTTPStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("empty store url")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		client:  client,
	}, nil
}

func (s *HTTPStore) query(ctx context.Context, path string, args map[string]any) (gjson.Result, error) {
	return s.call(ctx, "/api/query", path, args)
}

func (s *HTTPStore) mutation(ctx context.Context, path string, args map[string]any) (gjson.Result, error) {
	return s.call(ctx, "/api/mutation", path, args)
}

func (s *HTTPStore) call(ctx context.Context, endpoint, path string, args map[string]any) (gjson.Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"path":   path,
		"args":   args,
		"format": "json",
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %s: %v", ErrStore, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %s: read body: %v", ErrStore, path, err)
	}

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: %s: http %d with non-json body", ErrStore, path, resp.StatusCode)
	}

	envelope := gjson.ParseBytes(data)
	if envelope.Get("status").String() != "success" {
		msg := envelope.Get("errorMessage").String()
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		if strings.Contains(strings.ToLower(msg), "not found") {
			return gjson.Result{}, fmt.Errorf("%s: %w: %s", path, ErrNotFound, msg)
		}
		return gjson.Result{}, fmt.Errorf("%w: %s: %s", ErrStore, path, msg)
	}

	return envelope.Get("value"), nil
}

func taskFromJSON(v gjson.Result) Task {
	t := Task{
		ID:          firstString(v, "_id", "id"),
		Title:       v.Get("title").String(),
		Description: v.Get("description").String(),
		Status:      TaskStatus(v.Get("status").String()),
		Priority:    v.Get("priority").String(),
		CreatedBy:   v.Get("createdBy").String(),
		CreatedAt:   millis(v.Get("_creationTime")),
		UpdatedAt:   millis(v.Get("updatedAt")),
	}
	for _, a := range v.Get("assigneeIds").Array() {
		t.Assignees = append(t.Assignees, a.String())
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	return t
}

func messageFromJSON(v gjson.Result) Message {
	return Message{
		ID:        firstString(v, "_id", "id"),
		From:      firstString(v, "fromAgent", "from"),
		To:        firstString(v, "toAgent", "to"),
		Text:      firstString(v, "content", "text"),
		CreatedAt: millis(v.Get("_creationTime")),
	}
}

func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}

func millis(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	return time.UnixMilli(int64(v.Float())).UTC()
}

// ListTasks runs tasks:list
func (s *HTTPStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	args := map[string]any{}
	if filter.Status != "" {
		args["status"] = string(filter.Status)
	}
	if filter.AssignedTo != "" {
		args["assignedTo"] = filter.AssignedTo
	}

	value, err := s.query(ctx, "tasks:list", args)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	value.ForEach(func(_, item gjson.Result) bool {
		tasks = append(tasks, taskFromJSON(item))
		return true
	})
	return tasks, nil
}

// GetTask runs tasks:get
func (s *HTTPStore) GetTask(ctx context.Context, id string) (*Task, error) {
	value, err := s.query(ctx, "tasks:get", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if !value.Exists() || value.Type == gjson.Null {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	t := taskFromJSON(value)
	return &t, nil
}

// CreateTask runs tasks:create and returns the new id
func (s *HTTPStore) CreateTask(ctx context.Context, input TaskInput) (string, error) {
	args := map[string]any{
		"title":       input.Title,
		"description": input.Description,
		"createdBy":   input.CreatedBy,
	}
	if input.Priority != "" {
		args["priority"] = input.Priority
	}
	if input.Status != "" {
		args["status"] = string(input.Status)
	}
	if len(input.Assignees) > 0 {
		args["assigneeIds"] = input.Assignees
	}

	value, err := s.mutation(ctx, "tasks:create", args)
	if err != nil {
		return "", err
	}
	if value.IsObject() {
		return firstString(value, "_id", "id"), nil
	}
	return value.String(), nil
}

// UpdateTask runs tasks:update
func (s *HTTPStore) UpdateTask(ctx context.Context, id string, patch TaskPatch, actingAgent string) error {
	args := map[string]any{"id": id, "agentName": actingAgent}
	if patch.Title != nil {
		args["title"] = *patch.Title
	}
	if patch.Description != nil {
		args["description"] = *patch.Description
	}
	if patch.Status != nil {
		args["status"] = string(*patch.Status)
	}
	if patch.Priority != nil {
		args["priority"] = *patch.Priority
	}
	if patch.Assignees != nil {
		args["assigneeIds"] = patch.Assignees
	}

	_, err := s.mutation(ctx, "tasks:update", args)
	return err
}

// AddComment runs tasks:addComment
func (s *HTTPStore) AddComment(ctx context.Context, taskID, agent, text string) error {
	_, err := s.mutation(ctx, "tasks:addComment", map[string]any{
		"taskId":    taskID,
		"agentName": agent,
		"content":   text,
	})
	return err
}

// SendMessage runs messages:send
func (s *HTTPStore) SendMessage(ctx context.Context, from, to, text string) error {
	_, err := s.mutation(ctx, "messages:send", map[string]any{
		"fromAgent": from,
		"toAgent":   to,
		"content":   text,
	})
	return err
}

// UnreadMessages runs messages:listUnreadFor
func (s *HTTPStore) UnreadMessages(ctx context.Context, agent string) ([]Message, error) {
	value, err := s.query(ctx, "messages:listUnreadFor", map[string]any{"agentName": agent})
	if err != nil {
		return nil, err
	}

	var msgs []Message
	value.ForEach(func(_, item gjson.Result) bool {
		msgs = append(msgs, messageFromJSON(item))
		return true
	})
	return msgs, nil
}

// Heartbeat runs agents:heartbeat
func (s *HTTPStore) Heartbeat(ctx context.Context, agent, sessionKey, currentTask string) error {
	args := map[string]any{"name": agent, "sessionKey": sessionKey}
	if currentTask != "" {
		args["currentTask"] = currentTask
	}
	_, err := s.mutation(ctx, "agents:heartbeat", args)
	return err
}

// SetIdle runs agents:setIdle
func (s *HTTPStore) SetIdle(ctx context.Context, agent string) error {
	_, err := s.mutation(ctx, "agents:setIdle", map[string]any{"name": agent})
	return err
}

// Close releases idle connections
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
