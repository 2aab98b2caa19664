package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	// Must not panic.
	l.Info("ignored", String("k", "v"))
}

func TestWithFieldsAreApplied(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "alerts"))
	l.Warn("fetch failed", Err(errors.New("boom")), Int("attempt", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "alerts" {
		t.Fatalf("comp = %v, want alerts", m["comp"])
	}
	if m["level"] != "warn" {
		t.Fatalf("level = %v, want warn", m["level"])
	}
	if m["attempt"] != float64(2) {
		t.Fatalf("attempt = %v, want 2", m["attempt"])
	}
	if _, ok := m["caller"]; !ok {
		t.Fatal("expected caller field")
	}
}

func TestEnabledRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	if l.Enabled(LevelDebug) {
		t.Fatal("debug should be disabled at warn level")
	}
	if !l.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
