package guardrail

import (
	"fmt"
	"regexp"
)

// Matcher detects and rewrites one class of unsafe text
type Matcher interface {
	Name() string
	Detect(text string) bool
	Rewrite(text string) string
}

type patternMatcher struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// NewPatternMatcher compiles a regular expression whose every match is
// replaced with replacement.
func NewPatternMatcher(name, pattern, replacement string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPattern, name, err)
	}
	return &patternMatcher{name: name, re: re, replacement: replacement}, nil
}

func mustPattern(name, pattern, replacement string) Matcher {
	m, err := NewPatternMatcher(name, pattern, replacement)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *patternMatcher) Name() string {
	return m.name
}

func (m *patternMatcher) Detect(text string) bool {
	return m.re.MatchString(text)
}

func (m *patternMatcher) Rewrite(text string) string {
	return m.re.ReplaceAllLiteralString(text, m.replacement)
}

// Chain is an ordered list of matchers applied in sequence
type Chain []Matcher

// Detect reports whether any matcher fires
func (c Chain) Detect(text string) bool {
	for _, m := range c {
		if m.Detect(text) {
			return true
		}
	}
	return false
}

// Matches returns the names of every matcher that fires, in chain order
func (c Chain) Matches(text string) []string {
	var names []string
	for _, m := range c {
		if m.Detect(text) {
			names = append(names, m.Name())
		}
	}
	return names
}

// Rewrite applies every matcher in order
func (c Chain) Rewrite(text string) string {
	for _, m := range c {
		text = m.Rewrite(text)
	}
	return text
}
