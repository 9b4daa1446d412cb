package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONOutputRespectsLevel(t *testing.T) {
	defer func() { defaultLogger = nil }()

	var buf bytes.Buffer
	InitWriter(&buf, "warn", "json")

	Info("hidden %d", 1)
	Warn("shown %s", "here")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "shown here" {
		t.Errorf("msg = %v, want %q", entry["msg"], "shown here")
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
}

func TestTextOutput(t *testing.T) {
	defer func() { defaultLogger = nil }()

	var buf bytes.Buffer
	InitWriter(&buf, "debug", "text")
	Debug("synced %d records", 42)

	if !strings.Contains(buf.String(), "synced 42 records") {
		t.Errorf("text output missing message: %q", buf.String())
	}
}

func TestUninitializedIsNoop(t *testing.T) {
	defaultLogger = nil
	Info("nothing happens")
	Error("still nothing")
}
