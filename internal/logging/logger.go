// Package logging provides the logger used across shapekit.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger receives structured records as a message and key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultLogger is a Logger backed by log/slog that prefixes every message.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger writes text records at or above level to stderr.
func NewDefaultLogger(level slog.Level) *DefaultLogger {
	return NewLogger(os.Stderr, level)
}

// NewLogger writes text records at or above level to w.
func NewLogger(w io.Writer, level slog.Level) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))

	return &DefaultLogger{logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *DefaultLogger {
	return &DefaultLogger{logger: slog.New(slog.DiscardHandler)}
}

const prefix = "[shapekit] "

// Debug logs at debug level.
func (d *DefaultLogger) Debug(msg string, args ...any) {
	d.logger.Debug(prefix+msg, args...)
}

// Info logs at info level.
func (d *DefaultLogger) Info(msg string, args ...any) {
	d.logger.Info(prefix+msg, args...)
}

// Warn logs at warn level.
func (d *DefaultLogger) Warn(msg string, args ...any) {
	d.logger.Warn(prefix+msg, args...)
}

// Error logs at error level.
func (d *DefaultLogger) Error(msg string, args ...any) {
	d.logger.Error(prefix+msg, args...)
}
