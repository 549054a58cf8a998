// Package logging provides the structured logger shared by the storage
// engine and the operator tooling.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKey defines the key used to log errors.
const ErrorKey = "error"

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	name    string
	handler slog.Handler
}

// Options represents the configuration options for the logger.
type Options struct {
	Format string
	Level  string
}

// New initializes the logger with the given options. Supported formats are
// text (the default) and json; levels follow slog's vocabulary.
func New(name string, opts Options) (*Logger, error) {
	var output io.Writer = os.Stderr

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler = slog.NewTextHandler(output, hopts)
	case "json":
		handler = slog.NewJSONHandler(output, hopts)
	default:
		return nil, errors.Errorf("unsupported logger.format '%s'", opts.Format)
	}

	return &Logger{
		Logger:  slog.New(handler).With("name", name),
		name:    name,
		handler: handler,
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.Errorf("unsupported logger.level '%s'", s)
	}
}

// GetImpl returns the real implementation of the logger.
func (l *Logger) GetImpl() *slog.Logger {
	return l.Logger
}

// Fatal is equivalent to Error followed by os.Exit(1).
func (l *Logger) Fatal(msg string, args ...any) {
	l.Logger.Error(msg, args...)
	os.Exit(1)
}
