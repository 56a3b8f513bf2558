package guardrail

import "errors"

var (
	// ErrPathDenied is returned when a path fails containment
	ErrPathDenied = errors.New("path outside allowed locations")

	// ErrRateLimited is returned when a rate-limit key has reached its ceiling
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSecretDetected is returned when outbound content carries a credential
	ErrSecretDetected = errors.New("content contains a secret")

	// ErrInvalidIdentity is returned for names that fail the identity pattern
	ErrInvalidIdentity = errors.New("invalid agent identity")

	// ErrInvalidPattern is returned when a matcher pattern does not compile
	ErrInvalidPattern = errors.New("invalid matcher pattern")
)
