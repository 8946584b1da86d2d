// Package logging builds the process slog logger and carries request-scoped loggers in contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the log file created in the temp dir when debug is on
const FileName = "vision-dispatch.log"

// Options configures the process logger
type Options struct {
	Debug   bool // debug level, and tee to a log file in $TMPDIR
	Verbose bool // write to stderr
}

// Logger is a slog logger plus the writer it targets
type Logger struct {
	*slog.Logger
	out  io.Writer
	file *os.File
}

// New creates the process logger. Without Verbose or Debug it discards output.
func New(opts Options) (*Logger, error) {
	var writers []io.Writer
	if opts.Verbose || opts.Debug {
		writers = append(writers, os.Stderr)
	}

	var file *os.File
	if opts.Debug {
		logPath := filepath.Join(os.TempDir(), FileName)
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not create log file %s: %w", logPath, err)
		}
		file = f
		writers = append(writers, f)
	}

	out := io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	return &Logger{
		Logger: slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})),
		out:    out,
		file:   file,
	}, nil
}

// Writer returns the underlying writer, for libraries that log unstructured lines
func (l *Logger) Writer() io.Writer { return l.out }

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

type ctxKey struct{}

// WithContext stores a request-scoped logger
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored by WithContext, or fallback, or slog.Default
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
