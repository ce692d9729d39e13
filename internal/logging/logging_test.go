package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "WARN"}, "svfemon")

	logger.Info().Msg("hidden")
	logger.Warn().Int("total", 3).Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["service"] != "svfemon" || entry["message"] != "shown" || entry["total"] != float64(3) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	for _, raw := range []string{"", "loud"} {
		if got := parseLevel(raw); got != zerolog.InfoLevel {
			t.Fatalf("parseLevel(%q) = %v", raw, got)
		}
	}
	if got := parseLevel("debug"); got != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v", got)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Format: "console"}, "")
	logger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svfemon.log")
	logger := NewLogger(Config{Output: path}, "svfemon")
	logger.Error().Msg("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file missing entry: %q", data)
	}
}
