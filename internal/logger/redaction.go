package logger

import (
	"io"
)

// Redactor rewrites sensitive substrings before they reach a log sink
type Redactor interface {
	Redact(s string) string
}

// RedactorFunc adapts a plain function to the Redactor interface
type RedactorFunc func(s string) string

// Redact calls f(s)
func (f RedactorFunc) Redact(s string) string {
	return f(s)
}

// Wrap wraps an io.Writer so every write passes through the redactor
func Wrap(w io.Writer, r Redactor) io.Writer {
	if r == nil {
		return w
	}
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor Redactor
}

// Write reports len(p) on success so callers never see a short write caused
// by the redacted payload being shorter than the input.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
