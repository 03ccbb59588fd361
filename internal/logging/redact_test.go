package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newCapturingLogger(buf *bytes.Buffer) *slog.Logger {
	handler := NewRedactingHandler(slog.NewJSONHandler(buf, nil))
	return slog.New(handler)
}

func TestRedactingHandlerStripsTokenFromMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := newCapturingLogger(&buf)

	logger.Info("request failed: https://dns1/api/zones/list?token=abc123&zone=example.com")

	if strings.Contains(buf.String(), "abc123") {
		t.Errorf("expected token to be redacted, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "token=[REDACTED]") {
		t.Errorf("expected redaction marker in output, got: %s", buf.String())
	}
}

func TestRedactingHandlerStripsAPIKeyFromAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newCapturingLogger(&buf)

	logger.Info("calling server", "url", "https://dns1/api/x?api_key=supersecret&foo=bar")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if strings.Contains(decoded["url"].(string), "supersecret") {
		t.Errorf("expected api_key to be redacted, got: %v", decoded["url"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLevel("NONSENSE"); err == nil {
		t.Errorf("expected error for invalid level")
	}
}
