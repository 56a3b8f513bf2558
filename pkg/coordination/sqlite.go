package coordination

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Broadcast is the recipient value that addresses every agent
const Broadcast = "all"

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT '',
		assignees TEXT NOT NULL DEFAULT '[]',
		created_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		from_agent TEXT NOT NULL,
		to_agent TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_agent);

	CREATE TABLE IF NOT EXISTS message_reads (
		message_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		read_at INTEGER NOT NULL,
		PRIMARY KEY (message_id, agent)
	);

	CREATE TABLE IF NOT EXISTS agents (
		name TEXT PRIMARY KEY,
		session_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_task TEXT NOT NULL DEFAULT '',
		last_heartbeat INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_agent ON activity(agent);
`

var _ Store = (*SQLiteStore)(nil)

// Agent status values kept by the store
const (
	AgentActive = "active"
	AgentIdle   = "idle"
)

// AgentStatus is a row of the agents table
type AgentStatus struct {
	Name          string
	SessionKey    string
	Status        string
	CurrentTask   string
	LastHeartbeat time.Time
}

// Activity is a row of the activity log
type Activity struct {
	Agent      string
	Action     string
	TargetType string
	TargetID   string
	Detail     string
	CreatedAt  time.Time
}

// SQLiteStore is a single-host coordination store backed by a local
// database file. Reads of unread messages mark them read for the reader.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) stamp() int64 {
	return s.now().UnixMilli()
}

func newID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) record(ctx context.Context, tx *sql.Tx, agent, action, targetType, targetID, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activity (agent, action, target_type, target_id, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		agent, action, targetType, targetID, detail, s.stamp())
	return err
}

// withTx runs fn in a transaction, committing on success
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStore, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStore, err)
	}
	return nil
}

const taskColumns = `id, title, description, status, priority, assignees, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t         Task
		status    string
		assignees string
		created   int64
		updated   int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Priority, &assignees, &t.CreatedBy, &created, &updated); err != nil {
		return Task{}, err
	}
	t.Status = TaskStatus(status)
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	if err := json.Unmarshal([]byte(assignees), &t.Assignees); err != nil {
		return Task{}, fmt.Errorf("decode assignees of %s: %w", t.ID, err)
	}
	return t, nil
}

// ListTasks returns tasks matching filter, oldest first
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", ErrStore, err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if filter.AssignedTo != "" && !containsName(t.Assignees, filter.AssignedTo) {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// GetTask returns one task
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get task: %v", ErrStore, err)
	}
	return &t, nil
}

// CreateTask inserts a task and returns its id
func (s *SQLiteStore) CreateTask(ctx context.Context, input TaskInput) (string, error) {
	if strings.TrimSpace(input.Title) == "" {
		return "", fmt.Errorf("%w: task title is required", ErrStore)
	}
	id, err := newID()
	if err != nil {
		return "", err
	}

	status := input.Status
	if status == "" {
		status = StatusInbox
		if len(input.Assignees) > 0 {
			status = StatusPending
		}
	}
	assignees := input.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	encoded, err := json.Marshal(assignees)
	if err != nil {
		return "", err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, input.Title, input.Description, string(status), input.Priority, string(encoded), input.CreatedBy, now, now); err != nil {
			return fmt.Errorf("%w: create task: %v", ErrStore, err)
		}
		return s.record(ctx, tx, input.CreatedBy, "task_created", "task", id, input.Title)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTask applies patch to task id on behalf of actingAgent
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, patch TaskPatch, actingAgent string) error {
	var (
		sets   []string
		args   []any
		fields []string
	)
	if patch.Title != nil {
		sets, args, fields = append(sets, "title = ?"), append(args, *patch.Title), append(fields, "title")
	}
	if patch.Description != nil {
		sets, args, fields = append(sets, "description = ?"), append(args, *patch.Description), append(fields, "description")
	}
	if patch.Status != nil {
		sets, args, fields = append(sets, "status = ?"), append(args, string(*patch.Status)), append(fields, "status="+string(*patch.Status))
	}
	if patch.Priority != nil {
		sets, args, fields = append(sets, "priority = ?"), append(args, *patch.Priority), append(fields, "priority")
	}
	if patch.Assignees != nil {
		encoded, err := json.Marshal(patch.Assignees)
		if err != nil {
			return err
		}
		sets, args, fields = append(sets, "assignees = ?"), append(args, string(encoded)), append(fields, "assignees")
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.stamp(), id)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("%w: update task: %v", ErrStore, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return s.record(ctx, tx, actingAgent, "task_updated", "task", id, strings.Join(fields, ","))
	})
}

// AddComment appends a comment to a task
func (s *SQLiteStore) AddComment(ctx context.Context, taskID, agent, text string) error {
	id, err := newID()
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id = ?`, taskID).Scan(&exists); err != nil {
			return fmt.Errorf("%w: add comment: %v", ErrStore, err)
		}
		if exists == 0 {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, task_id, agent, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, taskID, agent, text, s.stamp()); err != nil {
			return fmt.Errorf("%w: add comment: %v", ErrStore, err)
		}
		return s.record(ctx, tx, agent, "comment_added", "task", taskID, "")
	})
}

// Comments returns the comments on a task, oldest first
func (s *SQLiteStore) Comments(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent, content FROM comments WHERE task_id = ? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: comments: %v", ErrStore, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var agent, content string
		if err := rows.Scan(&agent, &content); err != nil {
			return nil, err
		}
		out = append(out, agent+": "+content)
	}
	return out, rows.Err()
}

// SendMessage stores a message from one agent to another or to Broadcast
func (s *SQLiteStore) SendMessage(ctx context.Context, from, to, text string) error {
	id, err := newID()
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, from_agent, to_agent, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, from, to, text, s.stamp()); err != nil {
			return fmt.Errorf("%w: send message: %v", ErrStore, err)
		}
		return s.record(ctx, tx, from, "message_sent", "message", id, "to "+to)
	})
}

// UnreadMessages returns messages addressed to agent (directly or by
// broadcast) that agent has not seen, and marks them read.
func (s *SQLiteStore) UnreadMessages(ctx context.Context, agent string) ([]Message, error) {
	var msgs []Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT m.id, m.from_agent, m.to_agent, m.content, m.created_at
			FROM messages m
			WHERE (m.to_agent = ? OR m.to_agent = ?)
			  AND m.from_agent <> ?
			  AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.agent = ?)
			ORDER BY m.created_at, m.rowid`,
			agent, Broadcast, agent, agent)
		if err != nil {
			return fmt.Errorf("%w: unread messages: %v", ErrStore, err)
		}
		for rows.Next() {
			var (
				m       Message
				created int64
			)
			if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &created); err != nil {
				rows.Close()
				return fmt.Errorf("%w: unread messages: %v", ErrStore, err)
			}
			m.CreatedAt = time.UnixMilli(created).UTC()
			msgs = append(msgs, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("%w: unread messages: %v", ErrStore, err)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := s.stamp()
		for _, m := range msgs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO message_reads (message_id, agent, read_at) VALUES (?, ?, ?)`,
				m.ID, agent, now); err != nil {
				return fmt.Errorf("%w: mark read: %v", ErrStore, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Heartbeat marks agent active
func (s *SQLiteStore) Heartbeat(ctx context.Context, agent, sessionKey, currentTask string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agents (name, session_key, status, current_task, last_heartbeat)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				session_key = excluded.session_key,
				status = excluded.status,
				current_task = excluded.current_task,
				last_heartbeat = excluded.last_heartbeat`,
			agent, sessionKey, AgentActive, currentTask, s.stamp()); err != nil {
			return fmt.Errorf("%w: heartbeat: %v", ErrStore, err)
		}
		return s.record(ctx, tx, agent, "heartbeat", "agent", agent, currentTask)
	})
}

// SetIdle marks agent idle and clears its current task
func (s *SQLiteStore) SetIdle(ctx context.Context, agent string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agents (name, status, last_heartbeat) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET status = excluded.status, current_task = ''`,
			agent, AgentIdle, s.stamp()); err != nil {
			return fmt.Errorf("%w: set idle: %v", ErrStore, err)
		}
		return s.record(ctx, tx, agent, "idle", "agent", agent, "")
	})
}

// Agents returns every agent's last known status
func (s *SQLiteStore) Agents(ctx context.Context) ([]AgentStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, session_key, status, current_task, last_heartbeat FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: agents: %v", ErrStore, err)
	}
	defer rows.Close()

	var out []AgentStatus
	for rows.Next() {
		var (
			a  AgentStatus
			hb int64
		)
		if err := rows.Scan(&a.Name, &a.SessionKey, &a.Status, &a.CurrentTask, &hb); err != nil {
			return nil, err
		}
		a.LastHeartbeat = time.UnixMilli(hb).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentActivity returns up to limit activity rows, newest first
func (s *SQLiteStore) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent, action, target_type, target_id, detail, created_at FROM activity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: activity: %v", ErrStore, err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a       Activity
			created int64
		)
		if err := rows.Scan(&a.Agent, &a.Action, &a.TargetType, &a.TargetID, &a.Detail, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
