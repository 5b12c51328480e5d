// Package log provides the leveled audit logger threaded through every
// ISCC Hub component, in the same shape as boulder's blog.Logger: one
// logger instance constructed at startup and passed explicitly into each
// service's constructor, never reached via a package-level global.
package log

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the leveled logging interface shared by the sequencer,
// storage, and api packages and the two binaries.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errf(format string, args ...interface{})
	// AuditErrf logs an error that must survive in the audit trail - a
	// sequencer failure, a rollback, a rejected signature.
	AuditErrf(format string, args ...interface{})
}

type slogLogger struct {
	base *slog.Logger
}

// New returns a Logger that writes structured JSON lines to stderr,
// tagged with the given service name.
func New(service string) Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{})
	return &slogLogger{base: slog.New(handler).With("service", service)}
}

func (l *slogLogger) Debugf(format string, args ...interface{}) {
	l.base.Debug(fmt.Sprintf(format, args...))
}

func (l *slogLogger) Infof(format string, args ...interface{}) {
	l.base.Info(fmt.Sprintf(format, args...))
}

func (l *slogLogger) Warningf(format string, args ...interface{}) {
	l.base.Warn(fmt.Sprintf(format, args...))
}

func (l *slogLogger) Errf(format string, args ...interface{}) {
	l.base.Error(fmt.Sprintf(format, args...))
}

func (l *slogLogger) AuditErrf(format string, args ...interface{}) {
	l.base.Error(fmt.Sprintf(format, args...), "audit", true)
}

// NewNoop returns a Logger that discards everything, for use in tests that
// don't care about log output.
func NewNoop() Logger {
	handler := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{})
	return &slogLogger{base: slog.New(handler)}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
