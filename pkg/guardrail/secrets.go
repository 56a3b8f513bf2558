package guardrail

import "fmt"

// RedactedPlaceholder replaces every detected credential
const RedactedPlaceholder = "[REDACTED]"

// maxRedactPasses bounds the fixed-point loop in Redact
const maxRedactPasses = 8

// DefaultSecretMatchers returns the built-in credential patterns. Each match
// is replaced whole, prefix included.
func DefaultSecretMatchers() Chain {
	return Chain{
		mustPattern("private_key", `-----BEGIN (?:[A-Z]+ )*PRIVATE KEY-----(?:[\s\S]*?-----END (?:[A-Z]+ )*PRIVATE KEY-----)?`, RedactedPlaceholder),
		mustPattern("anthropic_key", `sk-ant-[A-Za-z0-9_-]{8,}`, RedactedPlaceholder),
		mustPattern("openai_key", `sk-(?:proj-)?[A-Za-z0-9_-]{20,}`, RedactedPlaceholder),
		mustPattern("github_token", `gh[pousr]_[A-Za-z0-9]{20,}`, RedactedPlaceholder),
		mustPattern("aws_access_key", `(?:AKIA|ASIA)[0-9A-Z]{16}`, RedactedPlaceholder),
		mustPattern("slack_token", `xox[abprs]-[A-Za-z0-9-]{10,}`, RedactedPlaceholder),
		mustPattern("jwt", `eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`, RedactedPlaceholder),
		mustPattern("bearer_token", `(?i)bearer\s+[A-Za-z0-9._~+/=-]{8,}`, RedactedPlaceholder),
		mustPattern("credential_assignment", `(?i)\b(?:password|passwd|pwd|api[_-]?key|secret|token)\s*[=:]\s*["']?[^\s"',;]{4,}["']?`, RedactedPlaceholder),
	}
}

// SecretFilter detects and redacts credentials in free text
type SecretFilter struct {
	chain Chain
}

// NewSecretFilter builds a filter from the default patterns plus extra
func NewSecretFilter(extra ...Matcher) *SecretFilter {
	chain := DefaultSecretMatchers()
	chain = append(chain, extra...)
	return &SecretFilter{chain: chain}
}

// Contains reports whether text carries any known credential. A failure
// inside a matcher reports true.
func (f *SecretFilter) Contains(text string) (found bool) {
	defer func() {
		if recover() != nil {
			found = true
		}
	}()
	return f.chain.Detect(text)
}

// Matches names the patterns that fire on text
func (f *SecretFilter) Matches(text string) []string {
	return f.chain.Matches(text)
}

// Redact replaces every credential with RedactedPlaceholder. Passes repeat
// until the output stops changing, so Redact(Redact(x)) == Redact(x). A
// failure inside a matcher yields the placeholder alone.
func (f *SecretFilter) Redact(text string) (out string) {
	defer func() {
		if recover() != nil {
			out = RedactedPlaceholder
		}
	}()

	out = text
	for i := 0; i < maxRedactPasses; i++ {
		next := f.chain.Rewrite(out)
		if next == out {
			return out
		}
		out = next
	}
	return out
}

// RedactError renders err with credentials removed
func (f *SecretFilter) RedactError(err error) string {
	if err == nil {
		return ""
	}
	return f.Redact(err.Error())
}

// RedactedError wraps err so its message is redacted while errors.Is and
// errors.As still see the original chain.
func (f *SecretFilter) RedactedError(err error) error {
	if err == nil {
		return nil
	}
	return &redactedError{msg: f.RedactError(err), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string {
	return e.msg
}

func (e *redactedError) Unwrap() error {
	return e.err
}

func (e *redactedError) Format(s fmt.State, verb rune) {
	fmt.Fprint(s, e.msg)
}
