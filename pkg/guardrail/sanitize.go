package guardrail

// BlockedPlaceholder replaces each shell-injection construct
const BlockedPlaceholder = "[BLOCKED]"

// DefaultInjectionMatchers returns the built-in shell-injection patterns
func DefaultInjectionMatchers() Chain {
	return Chain{
		mustPattern("command_substitution", `\$\([^)]*\)?`, BlockedPlaceholder),
		mustPattern("backtick_substitution", "`[^`]*`?", BlockedPlaceholder),
		mustPattern("variable_expansion", `\$\{[^}]*\}?`, BlockedPlaceholder),
		mustPattern("pipe_to_interpreter", `\|\s*(?:sh|bash|zsh|dash|ksh|python[0-9.]*|perl|ruby|node|php)\b`, BlockedPlaceholder),
		mustPattern("eval_exec", `(?i)\b(?:eval|exec)\s*\(`, BlockedPlaceholder),
		mustPattern("chained_destructive", `(?:;|&&|\|\|)\s*(?:sudo\s+)?(?:rm|mkfs|dd|shutdown|reboot|chmod|chown|curl|wget)\b`, BlockedPlaceholder),
	}
}

// Sanitizer neutralizes shell-injection constructs in inbound text
type Sanitizer struct {
	chain Chain
}

// NewSanitizer builds a sanitizer from the default patterns plus extra
func NewSanitizer(extra ...Matcher) *Sanitizer {
	chain := DefaultInjectionMatchers()
	chain = append(chain, extra...)
	return &Sanitizer{chain: chain}
}

// Sanitize returns text with every construct replaced and the names of the
// patterns that fired. A failure inside a matcher blocks the whole input.
func (s *Sanitizer) Sanitize(text string) (out string, fired []string) {
	defer func() {
		if recover() != nil {
			out, fired = BlockedPlaceholder, []string{"sanitizer_failure"}
		}
	}()

	fired = s.chain.Matches(text)
	if len(fired) == 0 {
		return text, nil
	}

	out = text
	for i := 0; i < maxRedactPasses; i++ {
		next := s.chain.Rewrite(out)
		if next == out {
			break
		}
		out = next
	}
	return out, fired
}
