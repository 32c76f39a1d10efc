// Package logging configures structured logging for ragcrawl.
//
// The one hard rule, carried from spec.md §6/§9: in stdio transport mode,
// stdout is reserved exclusively for line-delimited JSON-RPC responses. Every
// logger built by this package writes to stderr (optionally also to a
// rotating file); nothing in this package ever writes to os.Stdout, and
// GuardStdout only redirects it away from the real stdout.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// FilePath additionally mirrors logs to a rotating file when non-empty.
	FilePath string
	// MaxSizeMB is the rotation threshold for FilePath (default 10).
	MaxSizeMB int
	// MaxFiles caps the number of rotated files kept (default 5).
	MaxFiles int
}

// DefaultConfig returns info-level, stderr-only logging.
func DefaultConfig() Config {
	return Config{Level: "info", MaxSizeMB: 10, MaxFiles: 5}
}

// Setup builds a slog.Logger per cfg and returns it with a cleanup func that
// flushes and closes any rotating file writer. Output always includes
// stderr; FilePath, if set, is an additional sink.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		output = io.MultiWriter(os.Stderr, w)
		cleanup = func() { _ = w.Close() }
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(handler), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
