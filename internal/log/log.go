// Package log provides the logging infrastructure shared by all strand components.
//
// Loggers are injected, never global: each component receives a *slog.Logger via
// its Config and narrows it with logger.With("component", ...). Level parsing is
// kept here so the CLI and the config file agree on the accepted names.
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug, JSON: true})
//	engine := turn.New(turn.Config{Logger: logger.With("component", "turn")})
//
//	// In tests, discard output or capture it:
//	testLogger := log.NewNop()
//	var buf bytes.Buffer
//	testLogger = log.NewWithWriter(&buf, log.Config{})
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger aliases *slog.Logger directly, so components keep full access
// to the slog ecosystem (With, Groups, handlers) without an adapter
// interface in between.
type Logger = *slog.Logger

// Config selects the handler behavior for a new logger.
type Config struct {
	// Level is the minimum level that gets written. Zero value is info.
	Level slog.Level

	// JSON switches from the text handler to the JSON handler.
	JSON bool

	// AddSource annotates every entry with its emitting file and line.
	AddSource bool
}

// New builds a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter builds a logger on an arbitrary writer, which is how
// tests capture output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop builds a logger that drops everything.
//
// Tests only. Production code uses New or NewWithWriter so operational
// problems stay visible.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a
// slog.Level. Matching is case-insensitive; unknown names return an error and
// the info level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
