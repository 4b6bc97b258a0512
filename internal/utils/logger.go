package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger returns a slog.Logger configured for the desired verbosity and format.
func NewLogger(level string, json bool) *slog.Logger {
	return slog.New(newHandler(os.Stdout, ParseLevel(level), json))
}

// NewFileLogger behaves like NewLogger and additionally fans every record out
// to a JSON log file at path. The returned closer releases the file.
func NewFileLogger(level string, json bool, path string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return NewLogger(level, json), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	lvl := ParseLevel(level)
	handler := slogmulti.Fanout(
		newHandler(os.Stdout, lvl, json),
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl}),
	)
	return slog.New(handler), f, nil
}

func newHandler(w io.Writer, level slog.Level, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
