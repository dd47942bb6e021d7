// Package logger wraps log/slog with the policy the editor host needs: a
// process-wide default logger that is always usable, optional file outputs,
// and runtime level/format changes.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Format selects the log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger is a slog.Logger whose outputs, level, and format can be swapped at
// runtime.
type Logger struct {
	*slog.Logger
	mu      sync.Mutex
	writers []io.Writer
	level   slog.Level
	format  Format
}

// New creates a logger writing to the given outputs. Without outputs it
// falls back to stderr.
func New(level slog.Level, format Format, writers ...io.Writer) *Logger {
	if len(writers) == 0 {
		writers = []io.Writer{os.Stderr}
	}
	l := &Logger{writers: writers, level: level, format: format}
	l.rebuild()
	return l
}

// rebuild recreates the handler from the current writers, level, and format.
// Callers hold mu, except during construction.
func (l *Logger) rebuild() {
	w := io.MultiWriter(l.writers...)
	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	if l.format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l.Logger = slog.New(handler)
}

// SetLevel changes the minimum logged level.
func (l *Logger) SetLevel(level slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuild()
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetFormat switches between text and JSON output.
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	l.rebuild()
}

// AddOutput attaches an additional output destination.
func (l *Logger) AddOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writers = append(l.writers, w)
	l.rebuild()
}

// Rotate closes the current log file writers and starts writing to path.
// Stdout and stderr writers are kept.
func (l *Logger) Rotate(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kept []io.Writer
	for _, w := range l.writers {
		if file, ok := w.(*os.File); ok && file != os.Stdout && file != os.Stderr {
			file.Close()
			continue
		}
		kept = append(kept, w)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.writers = append(kept, file)
	l.rebuild()
	return nil
}

// Close closes all file writers except stdout and stderr.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writers {
		if file, ok := w.(*os.File); ok && file != os.Stdout && file != os.Stderr {
			if err := file.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// defaultLogger is always usable; Init replaces it with the configured one.
var defaultLogger = New(slog.LevelInfo, FormatText, os.Stderr)

// Init replaces the default logger: stdout plus one file per non-empty path,
// directories created as needed.
func Init(level slog.Level, format Format, paths ...string) error {
	writers := []io.Writer{os.Stdout}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}
	defaultLogger = New(level, format, writers...)
	return nil
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger
}

// GetLevelFromString maps a level name to its slog level, defaulting to
// info.
func GetLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.ErrorContext(ctx, msg, args...)
}
