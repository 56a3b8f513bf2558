package guardrail

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusseau-dev/mission-control/internal/logger"
	"github.com/dusseau-dev/mission-control/internal/metrics"
)

// Kind separates routine activity from security-relevant events
type Kind string

const (
	KindActivity Kind = "activity"
	KindSecurity Kind = "security"
)

// Record is one audit trail entry
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Actor     string    `json:"actor"`
	Label     string    `json:"label"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditConfig configures the audit trail
type AuditConfig struct {
	Path       string         // JSON lines file, empty for console only
	MaxSizeMB  int            // rotation threshold
	MaxAgeDays int            // rotated file retention
	Compress   bool           // gzip rotated files
	Console    zerolog.Logger // operator-visible mirror
	Observer   func(Record)   // optional hook, called after every record
}

// Auditor appends redacted records to the audit file and mirrors them to
// the console. The file is opened on first use.
type Auditor struct {
	cfg      AuditConfig
	secrets  *SecretFilter
	now      func() time.Time
	once     sync.Once
	mu       sync.Mutex
	file     zerolog.Logger
	closer   io.Closer
	fileOpen bool
}

// NewAuditor creates an auditor that redacts details with secrets
func NewAuditor(cfg AuditConfig, secrets *SecretFilter) *Auditor {
	return &Auditor{
		cfg:     cfg,
		secrets: secrets,
		now:     time.Now,
	}
}

func (a *Auditor) init() {
	a.once.Do(func() {
		if a.cfg.Path == "" {
			return
		}
		w, err := logger.NewRotatingWriter(a.cfg.Path, a.cfg.MaxSizeMB, a.cfg.MaxAgeDays, a.cfg.Compress)
		if err != nil {
			a.cfg.Console.Warn().Err(err).Str("path", a.cfg.Path).Msg("Audit file unavailable, console only")
			return
		}
		a.file = zerolog.New(logger.Wrap(w, a.secrets))
		a.closer = w
		a.fileOpen = true
	})
}

// Activity records a routine event
func (a *Auditor) Activity(actor, label, detail string) {
	a.record(KindActivity, actor, label, detail)
}

// Security records a security-relevant event
func (a *Auditor) Security(actor, label, detail string) {
	a.record(KindSecurity, actor, label, detail)
	metrics.RecordSecurityEvent(label)
}

func (a *Auditor) record(kind Kind, actor, label, detail string) {
	a.init()

	rec := Record{
		Timestamp: a.now().UTC(),
		Kind:      kind,
		Actor:     actor,
		Label:     label,
		Detail:    a.secrets.Redact(detail),
	}

	a.mu.Lock()
	if a.fileOpen {
		a.file.Log().
			Time("timestamp", rec.Timestamp).
			Str("kind", string(rec.Kind)).
			Str("actor", rec.Actor).
			Str("label", rec.Label).
			Str("detail", rec.Detail).
			Send()
	}
	a.mu.Unlock()

	var event *zerolog.Event
	if kind == KindSecurity {
		event = a.cfg.Console.Warn().Bool("security", true)
	} else {
		event = a.cfg.Console.Info()
	}
	event.Str("actor", rec.Actor).Str("event", rec.Label).Str("detail", rec.Detail).Msg("audit")

	if a.cfg.Observer != nil {
		a.cfg.Observer(rec)
	}
}

// Close releases the audit file
func (a *Auditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	a.fileOpen = false
	return err
}
