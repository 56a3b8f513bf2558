// Package coordination is the client side of the shared store agents use
// to exchange tasks, comments, messages, and status. The store records an
// activity entry for every write on its own; callers never write activity
// directly.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	StatusInbox      TaskStatus = "inbox"
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
)

// Active reports whether a task still needs an agent's attention
func (s TaskStatus) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// ErrNotFound is returned for unknown task ids
var ErrNotFound = errors.New("not found")

// ErrStore wraps failures reported by the store itself
var ErrStore = errors.New("coordination store error")

// Task is a unit of work on the shared board
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	Assignees   []string   `json:"assignees,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Message is a direct or broadcast note between agents
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskFilter narrows tasks.list. Zero fields match everything.
type TaskFilter struct {
	Status     TaskStatus
	AssignedTo string
}

// TaskInput carries the fields of a new task
type TaskInput struct {
	Title       string
	Description string
	Priority    string
	Status      TaskStatus
	Assignees   []string
	CreatedBy   string
}

// TaskPatch carries the fields to change on a task. Nil fields are left
// untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *string
	Assignees   []string
}

// Empty reports whether the patch changes nothing
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && p.Assignees == nil
}

// Store is the query/mutation surface of the shared coordination store
type Store interface {
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	CreateTask(ctx context.Context, input TaskInput) (string, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch, actingAgent string) error
	AddComment(ctx context.Context, taskID, agent, text string) error

	SendMessage(ctx context.Context, from, to, text string) error
	UnreadMessages(ctx context.Context, agent string) ([]Message, error)

	Heartbeat(ctx context.Context, agent, sessionKey, currentTask string) error
	SetIdle(ctx context.Context, agent string) error

	Close() error
}

// Opener resolves a relative SQLite path to an absolute, contained one
type Opener func(relative string) (string, error)

// Open returns the store for endpoint. An empty endpoint means offline
// mode and yields a nil Store with no error. Supported forms:
//
//	http://host[:port]  or https://...   remote query/mutation API
//	sqlite://path                        local database file
func Open(endpoint string, opts HTTPOptions, resolve Opener) (Store, error) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return nil, nil
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		s, err := NewHTTPStore(endpoint, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(endpoint, "sqlite://"):
		path := strings.TrimPrefix(endpoint, "sqlite://")
		if resolve != nil {
			resolved, err := resolve(path)
			if err != nil {
				return nil, err
			}
			path = resolved
		}
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported coordination endpoint %q", endpoint)
	}
}
