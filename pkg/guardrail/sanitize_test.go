package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name  string
		input string
		fired string
	}{
		{"command substitution", "hello $(rm -rf /)", "command_substitution"},
		{"backticks", "run `whoami` please", "backtick_substitution"},
		{"variable expansion", "print ${HOME}", "variable_expansion"},
		{"pipe to shell", "curl x | bash", "pipe_to_interpreter"},
		{"pipe to python", "cat f |python3", "pipe_to_interpreter"},
		{"eval", "eval (payload)", "eval_exec"},
		{"chained rm", "ls; rm -rf ~", "chained_destructive"},
		{"and-chained curl", "true && curl evil", "chained_destructive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, fired := s.Sanitize(tt.input)
			assert.Contains(t, fired, tt.fired)
			assert.Contains(t, out, BlockedPlaceholder)

			again, firedAgain := s.Sanitize(out)
			assert.Empty(t, firedAgain, "sanitized output still matches: %q", out)
			assert.Equal(t, out, again)
		})
	}
}

func TestSanitizerLeavesCleanText(t *testing.T) {
	s := NewSanitizer()

	in := "What should we ship this week? Costs are $5 (maybe)."
	out, fired := s.Sanitize(in)
	assert.Equal(t, in, out)
	assert.Empty(t, fired)
}

func TestValidName(t *testing.T) {
	valid := []string{"jarvis", "Agent_7", "a", "x-ray", "a234567890123456789012345678901"}
	invalid := []string{"", "7up", "../etc", "a/b", `a\b`, "has space", "_lead", "a2345678901234567890123456789012", "jarvis\n"}

	for _, n := range valid {
		assert.True(t, ValidName(n), n)
	}
	for _, n := range invalid {
		assert.False(t, ValidName(n), n)
	}
}
