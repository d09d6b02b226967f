package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"warn", "warn", slog.LevelWarn},
		{"error", "ERROR", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLoggerWithFormat_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithFormat("trace", "json", &buf)
	logger.Log(context.Background(), LevelTrace, "tick", "n", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "TRACE" {
		t.Errorf("level = %v, want TRACE", entry["level"])
	}
	if entry["n"] != float64(3) {
		t.Errorf("n = %v, want 3", entry["n"])
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	var buf bytes.Buffer
	l := NewLogger("info", &buf)
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return a non-nil logger unchanged")
	}
	OrDiscard(nil).Error("dropped")
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

// readDecisions parses every JSONL entry under dir.
func readDecisions(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("failed to read decisions.jsonl: %v", err)
	}
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad JSONL line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewDecisionLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled bool
	}{
		{"", false},
		{"info", false},
		{"warn", false},
		{"debug", true},
		{"trace", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "nested", ".loom")
			dl := NewDecisionLogger(dir, tt.level)
			defer dl.Close()

			if (dl != nil) != tt.enabled {
				t.Fatalf("NewDecisionLogger(%q) enabled = %v, want %v", tt.level, dl != nil, tt.enabled)
			}
			dl.Record("consolidation", "flagged", 3)

			info, err := os.Stat(filepath.Join(dir, "decisions.jsonl"))
			if !tt.enabled {
				if err == nil {
					t.Error("decisions.jsonl should not exist when disabled")
				}
				return
			}
			if err != nil {
				t.Fatalf("decisions.jsonl missing: %v", err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("file permissions = %o, want 0600", perm)
			}
		})
	}
}

func TestDecisionLogger_Entries(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "debug")
	defer dl.Close()

	event := map[string]any{"event": "load", "nodes": 8}
	dl.Log(event)
	dl.Record("op_skipped", "kind", "edge", "reason", "invalid index", "dangling")

	if _, ok := event["time"]; ok {
		t.Error("Log mutated the caller's map")
	}

	entries := readDecisions(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["event"] != "load" || entries[0]["nodes"] != float64(8) {
		t.Errorf("first entry = %v", entries[0])
	}
	if _, ok := entries[0]["time"]; !ok {
		t.Error("entry has no time field")
	}
	skip := entries[1]
	if skip["event"] != "op_skipped" || skip["kind"] != "edge" || skip["reason"] != "invalid index" {
		t.Errorf("second entry = %v", skip)
	}
	if skip["dangling"] != "!MISSING" {
		t.Errorf("dangling = %v, want !MISSING", skip["dangling"])
	}
}

func TestDecisionLogger_NilAndClosed(t *testing.T) {
	var nilLogger *DecisionLogger
	nilLogger.Log(map[string]any{"event": "ignored"})
	nilLogger.Record("ignored")
	nilLogger.Close()

	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "trace")
	dl.Record("save")
	dl.Close()
	dl.Record("after_close")
	dl.Close()

	if entries := readDecisions(t, dir); len(entries) != 1 {
		t.Errorf("got %d entries, want only the one written before Close", len(entries))
	}
}
