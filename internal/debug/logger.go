// Package debug provides the shared log/slog logger used across seal.
package debug

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	// logger is the global logger instance
	logger *slog.Logger
	// enabled indicates if logging is enabled
	enabled bool
	// mu protects the logger and enabled flag
	mu sync.RWMutex
)

func init() {
	Init(false)
}

// Options controls how the logger is built.
type Options struct {
	Enabled bool
	// Level is one of debug, info, warn, error. Defaults to debug.
	Level string
	// Format is text or json. Defaults to text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init enables debug logging to stderr, or silences the logger when enable is false.
func Init(enable bool) {
	Configure(Options{Enabled: enable})
}

// Configure rebuilds the global logger from opts.
func Configure(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	enabled = opts.Enabled

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(opts.Level)
	if !opts.Enabled {
		// Higher than any level actually emitted
		level = slog.LevelError + 1
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	logger = slog.New(handler)
}

// ParseLevel maps a level name onto a slog.Level, defaulting to debug.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Enabled returns whether logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	return current()
}

func current() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l
}
