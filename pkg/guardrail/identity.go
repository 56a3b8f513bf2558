package guardrail

import "regexp"

// MaxNameLength bounds agent names
const MaxNameLength = 31

var agentNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,30}$`)

// ValidName reports whether name is usable as an agent identity. Valid
// names never contain path separators or traversal segments, so they are
// safe to embed in filesystem paths.
func ValidName(name string) bool {
	return agentNamePattern.MatchString(name)
}
