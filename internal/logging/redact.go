// Package logging wires TechniSync's structured logger: JSON output to
// both stdout and a fixed log file, passed through a handler that strips
// API credentials before a record ever reaches a sink.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
)

var (
	tokenPattern  = regexp.MustCompile(`token=[^&\s]+`)
	apiKeyPattern = regexp.MustCompile(`api_key=[^&\s]+`)
)

func redact(s string) string {
	s = tokenPattern.ReplaceAllString(s, "token=[REDACTED]")
	s = apiKeyPattern.ReplaceAllString(s, "api_key=[REDACTED]")
	return s
}

// RedactingHandler wraps an slog.Handler, redacting token=... and
// api_key=... substrings from the record's message and any top-level
// string-valued attribute (including those attached via WithAttrs) before
// delegating. String values nested inside attribute groups are not
// redacted.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	redacted := record.Clone()
	redacted.Message = redact(record.Message)

	newRecord := slog.NewRecord(redacted.Time, redacted.Level, redacted.Message, redacted.PC)
	record.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, newRecord)
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, redact(a.Value.String()))
	}
	return a
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

// New builds the daemon's logger: JSON records fanned out to stdout and to
// logFile, both passed through RedactingHandler, at the given level.
func New(level slog.Level, logFile string) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", logFile, err)
	}

	writer := io.MultiWriter(os.Stdout, f)
	handler := NewRedactingHandler(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
	logger := slog.New(handler)

	return logger, f.Close, nil
}

// ParseLevel maps TechniSync's configured log level name to an slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
