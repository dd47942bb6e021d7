package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func parseLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", line, err)
	}
	return entry
}

func TestLevelsJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(slog.LevelDebug, FormatJSON, buf)

	cases := []struct {
		log   func(msg string, args ...any)
		level string
	}{
		{l.Debug, "DEBUG"},
		{l.Info, "INFO"},
		{l.Warn, "WARN"},
		{l.Error, "ERROR"},
	}
	for _, tc := range cases {
		buf.Reset()
		tc.log("a message", "key", "value")
		entry := parseLine(t, buf.String())
		if entry["level"] != tc.level || entry["msg"] != "a message" || entry["key"] != "value" {
			t.Errorf("%s message not logged correctly: %v", tc.level, entry)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(slog.LevelDebug, FormatJSON, buf)

	l.SetLevel(slog.LevelWarn)
	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	output := buf.String()
	if got := strings.Count(output, "\n"); got != 2 {
		t.Errorf("expected 2 messages at warn level, got %d", got)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("messages at or above warn level should be logged")
	}
}

func TestTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(slog.LevelInfo, FormatText, buf)

	l.Info("test message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "test message") || !strings.Contains(output, "key=value") {
		t.Errorf("text format not logged correctly: %q", output)
	}
}

func TestSetFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(slog.LevelInfo, FormatText, buf)
	l.SetFormat(FormatJSON)

	l.Info("switched")
	entry := parseLine(t, buf.String())
	if entry["msg"] != "switched" {
		t.Errorf("expected JSON output after SetFormat, got %q", buf.String())
	}
}

func TestMultipleOutputs(t *testing.T) {
	buf1 := &bytes.Buffer{}
	buf2 := &bytes.Buffer{}
	l := New(slog.LevelInfo, FormatJSON, buf1, buf2)

	l.Info("test message", "key", "value")
	if buf1.String() != buf2.String() {
		t.Error("all outputs should receive the same content")
	}
	entry := parseLine(t, buf1.String())
	if entry["msg"] != "test message" || entry["key"] != "value" {
		t.Errorf("message not logged correctly: %v", entry)
	}
}

func TestRotate(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "host.log")

	if err := Init(slog.LevelInfo, FormatJSON, logPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer defaultLogger.Close()

	Info("first message", "key", "value1")

	newPath := filepath.Join(tempDir, "host2.log")
	if err := defaultLogger.Rotate(newPath); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	Info("second message", "key", "value2")

	oldContent, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read old log: %v", err)
	}
	if !strings.Contains(string(oldContent), "first message") {
		t.Error("old log file should contain the first message")
	}
	newContent, err := os.ReadFile(newPath)
	if err != nil {
		t.Fatalf("read new log: %v", err)
	}
	if strings.Contains(string(newContent), "first message") {
		t.Error("new log file should not contain the first message")
	}
	if !strings.Contains(string(newContent), "second message") {
		t.Error("new log file should contain the second message")
	}
}

func TestDefaultLoggerAlwaysUsable(t *testing.T) {
	if Default() == nil {
		t.Fatal("default logger must never be nil")
	}
	// Package helpers must work even when Init was never called.
	Debug("default debug")
	Warn("default warn")
}

func TestGetLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := GetLevelFromString(tt.input); got != tt.want {
			t.Errorf("GetLevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConcurrentLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(slog.LevelDebug, FormatJSON, buf)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				l.Info("message", "id", id, "count", j)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if got := strings.Count(buf.String(), "\n"); got != 1000 {
		t.Errorf("expected 1000 messages, got %d", got)
	}
}
