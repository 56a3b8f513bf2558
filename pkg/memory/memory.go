// Package memory persists each agent's conversation history as a bounded
// JSON document under memory/<agent>/session.json.
package memory

import (
	"time"
	"unicode/utf8"
)

const (
	// MaxEntries caps the conversation history; older entries are dropped
	MaxEntries = 100

	// MaxInputRunes truncates the stored user input
	MaxInputRunes = 500

	// MaxSummaryRunes truncates the stored response summary
	MaxSummaryRunes = 1000
)

// Entry is one remembered exchange
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"user_input"`
	Summary   string    `json:"response_summary"`
}

// Memory is an agent's persisted session state
type Memory struct {
	Conversations []Entry    `json:"conversations"`
	LastRun       *time.Time `json:"last_run,omitempty"`
}

// New returns an empty memory
func New() *Memory {
	return &Memory{Conversations: []Entry{}}
}

// Append truncates e's fields and appends it, dropping the oldest entries
// beyond MaxEntries.
func (m *Memory) Append(e Entry) {
	e.Input = Truncate(e.Input, MaxInputRunes)
	e.Summary = Truncate(e.Summary, MaxSummaryRunes)
	m.Conversations = append(m.Conversations, e)
	m.trim()
}

// Recent returns a copy of the last n entries, oldest first
func (m *Memory) Recent(n int) []Entry {
	if n <= 0 || len(m.Conversations) == 0 {
		return nil
	}
	start := len(m.Conversations) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(m.Conversations)-start)
	copy(out, m.Conversations[start:])
	return out
}

// Len returns the number of remembered entries
func (m *Memory) Len() int {
	return len(m.Conversations)
}

// MarkRun stamps the time of the last autonomous run
func (m *Memory) MarkRun(t time.Time) {
	t = t.UTC()
	m.LastRun = &t
}

func (m *Memory) trim() {
	if over := len(m.Conversations) - MaxEntries; over > 0 {
		m.Conversations = append([]Entry(nil), m.Conversations[over:]...)
	}
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
