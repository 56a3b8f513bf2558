package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dusseau-dev/mission-control/internal/metrics"
	"github.com/dusseau-dev/mission-control/pkg/guardrail"
)

// FileName is the session file inside an agent's memory directory
const FileName = "session.json"

// ErrLocationDenied is returned when the memory directory fails containment
var ErrLocationDenied = errors.New("memory location denied")

// Schema is the JSON schema a session file must satisfy to be loaded
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["conversations"],
  "properties": {
    "conversations": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["timestamp", "user_input", "response_summary"],
        "properties": {
          "timestamp": {"type": "string"},
          "user_input": {"type": "string"},
          "response_summary": {"type": "string"}
        }
      }
    },
    "last_run": {"type": ["string", "null"]}
  }
}`

// Store reads and writes one agent's session file
type Store struct {
	agent  string
	dir    string
	path   string
	guard  *guardrail.Guard
	logger zerolog.Logger
	schema gojsonschema.JSONLoader
	mu     sync.Mutex
}

// NewStore prepares memory/<agent>/ under the guard's root. agent must
// already be a validated name.
func NewStore(guard *guardrail.Guard, agent string, logger zerolog.Logger) (*Store, error) {
	dir := guard.Path(guardrail.DirMemory, agent)
	if err := guard.CheckPath(agent, dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocationDenied, err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}

	return &Store{
		agent:  agent,
		dir:    dir,
		path:   filepath.Join(dir, FileName),
		guard:  guard,
		logger: logger.With().Str("component", "memory").Str("agent", agent).Logger(),
		schema: gojsonschema.NewStringLoader(Schema),
	}, nil
}

// Path returns the session file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the session file. A missing, unreadable, or malformed file
// yields empty memory.
func (s *Store) Load() *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard.CheckPath(s.agent, s.path); err != nil {
		s.logger.Warn().Err(err).Msg("Memory load skipped")
		return New()
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New()
	}
	if err != nil {
		s.reset("unreadable", err)
		return New()
	}

	if err := s.validate(data); err != nil {
		s.reset("invalid", err)
		return New()
	}

	var m Memory
	if err := json.Unmarshal(data, &m); err != nil {
		s.reset("corrupt", err)
		return New()
	}
	if m.Conversations == nil {
		m.Conversations = []Entry{}
	}
	m.trim()

	metrics.SetMemoryEntries(s.agent, m.Len())
	s.logger.Debug().Int("entries", m.Len()).Msg("Loaded memory")
	return &m
}

func (s *Store) validate(data []byte) error {
	result, err := gojsonschema.Validate(s.schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (s *Store) reset(reason string, err error) {
	s.logger.Warn().Err(err).Str("reason", reason).Msg("Memory file unusable, starting empty")
	s.guard.Activity(s.agent, "memory_reset", reason+": "+err.Error())
}

// Save caps, redacts, and atomically writes m. When the session path fails
// containment the write is skipped and the wrapped ErrPathDenied returned.
func (s *Store) Save(m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard.CheckPath(s.agent, s.path); err != nil {
		return fmt.Errorf("memory save skipped: %w", err)
	}

	out := Memory{LastRun: m.LastRun, Conversations: make([]Entry, 0, len(m.Conversations))}
	for _, e := range m.Conversations {
		out.Conversations = append(out.Conversations, Entry{
			Timestamp: e.Timestamp,
			Input:     s.guard.Redact(e.Input),
			Summary:   s.guard.Redact(e.Summary),
		})
	}
	out.trim()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	metrics.SetMemoryEntries(s.agent, out.Len())
	s.logger.Debug().Int("entries", out.Len()).Msg("Persisted memory")
	return nil
}
