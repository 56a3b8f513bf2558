// Package guardrail is the security layer every agent action passes
// through: path containment, secret detection and redaction, input
// sanitization, rate limiting, identity validation, and the audit trail.
//
// A Guard is constructed once and shared by reference. All methods are
// safe for concurrent use.
package guardrail

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dusseau-dev/mission-control/internal/metrics"
)

// Config configures a Guard
type Config struct {
	Paths          PathPolicy
	Audit          AuditConfig
	SecretPatterns []Matcher        // appended to the defaults
	Now            func() time.Time // rate-limit and audit clock
}

// Guard composes every guardrail behind one handle
type Guard struct {
	paths     *PathGuard
	secrets   *SecretFilter
	sanitizer *Sanitizer
	limiter   *RateLimiter
	audit     *Auditor
}

// New builds a Guard. Failing to canonicalize the path policy is the only
// construction error.
func New(cfg Config) (*Guard, error) {
	paths, err := NewPathGuard(cfg.Paths)
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secrets := NewSecretFilter(cfg.SecretPatterns...)
	audit := NewAuditor(cfg.Audit, secrets)
	audit.now = now

	return &Guard{
		paths:     paths,
		secrets:   secrets,
		sanitizer: NewSanitizer(),
		limiter:   NewRateLimiterWithClock(now),
		audit:     audit,
	}, nil
}

// Root returns the canonical root directory
func (g *Guard) Root() string {
	return g.paths.Root()
}

// Path joins elems under the root
func (g *Guard) Path(elems ...string) string {
	return filepath.Join(append([]string{g.paths.Root()}, elems...)...)
}

// CheckPath returns ErrPathDenied (wrapped) and records a security event
// when path fails containment.
func (g *Guard) CheckPath(actor, path string) error {
	if err := g.paths.Check(path); err != nil {
		g.audit.Security(actor, "path_denied", err.Error())
		return err
	}
	return nil
}

// AllowPath is CheckPath reduced to a boolean
func (g *Guard) AllowPath(actor, path string) bool {
	return g.CheckPath(actor, path) == nil
}

// ContainsSecret reports whether text carries a credential
func (g *Guard) ContainsSecret(text string) bool {
	return g.secrets.Contains(text)
}

// Redact replaces every credential in text
func (g *Guard) Redact(text string) string {
	return g.secrets.Redact(text)
}

// RedactError wraps err with a redacted message
func (g *Guard) RedactError(err error) error {
	return g.secrets.RedactedError(err)
}

// RejectSecrets returns ErrSecretDetected and records a security event when
// any field value carries a credential.
func (g *Guard) RejectSecrets(actor, operation string, fields map[string]string) error {
	for name, value := range fields {
		if !g.secrets.Contains(value) {
			continue
		}
		g.audit.Security(actor, "secret_blocked",
			fmt.Sprintf("%s: field %s matched %v", operation, name, g.secrets.Matches(value)))
		return fmt.Errorf("%s: %w in %s", operation, ErrSecretDetected, name)
	}
	return nil
}

// WarnSecrets records a security event when text carries a credential and
// reports whether it did. The text is not altered.
func (g *Guard) WarnSecrets(actor, operation, text string) bool {
	if !g.secrets.Contains(text) {
		return false
	}
	g.audit.Security(actor, "secret_in_input",
		fmt.Sprintf("%s: matched %v", operation, g.secrets.Matches(text)))
	return true
}

// SanitizeInput neutralizes shell-injection constructs, recording a
// security event when anything was replaced.
func (g *Guard) SanitizeInput(actor, text string) string {
	out, fired := g.sanitizer.Sanitize(text)
	if len(fired) > 0 {
		g.audit.Security(actor, "input_sanitized", fmt.Sprintf("patterns %v", fired))
	}
	return out
}

// Allow consumes one slot of key's window under ceiling. Rejections are
// recorded as security events attributed to actor.
func (g *Guard) Allow(actor, scope string, ceiling int) error {
	key := scope + ":" + actor
	if g.limiter.Allow(key, ceiling) {
		return nil
	}
	metrics.RecordRateLimitRejection(scope)
	retry := g.limiter.RetryAfter(key, ceiling)
	g.audit.Security(actor, "rate_limited",
		fmt.Sprintf("%s ceiling %d/min, retry in %s", scope, ceiling, retry.Round(time.Second)))
	return fmt.Errorf("%s: %w (retry in %s)", scope, ErrRateLimited, retry.Round(time.Second))
}

// ValidateName returns ErrInvalidIdentity and records a security event for
// names that fail the identity pattern.
func (g *Guard) ValidateName(actor, name string) error {
	if ValidName(name) {
		return nil
	}
	g.audit.Security(actor, "invalid_identity", fmt.Sprintf("rejected name %q", name))
	return fmt.Errorf("%w: %q", ErrInvalidIdentity, name)
}

// Activity records a routine audit event
func (g *Guard) Activity(actor, label, detail string) {
	g.audit.Activity(actor, label, detail)
}

// Security records a security audit event
func (g *Guard) Security(actor, label, detail string) {
	g.audit.Security(actor, label, detail)
}

// Close flushes and closes the audit file
func (g *Guard) Close() error {
	return g.audit.Close()
}
