// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes an optional rotated log file. An empty Path disables it.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a logger writing to stderr. Unknown levels fall back to info
// and unknown formats to text.
func New(level, format string) *slog.Logger {
	return newLogger(os.Stderr, level, format)
}

// NewWithFile returns a logger that tees stderr into a rotated file. The
// returned closer releases the file and is a no-op when no path is set.
func NewWithFile(level, format string, file FileConfig) (*slog.Logger, io.Closer, error) {
	if file.Path == "" {
		return New(level, format), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(file.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	rotated := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    orDefault(file.MaxSizeMB, 64),
		MaxBackups: orDefault(file.MaxBackups, 3),
		MaxAge:     orDefault(file.MaxAgeDays, 7),
		Compress:   true,
	}
	return newLogger(io.MultiWriter(os.Stderr, rotated), level, format), rotated, nil
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
