// Package mlog defines the logging abstraction used across Amebo.
package mlog

import (
	"context"
	"fmt"
	"log"
)

// Logger is the common interface every component logs through.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	Fatalf(format string, args ...any)

	// WithFields returns a new Logger that always emits the given key/value
	// pairs alongside its own, leaving the receiver unchanged.
	WithFields(fields ...any) Logger

	Sync() error
}

// StdLogger is a dependency-free Logger backed by the standard library.
// It is the fallback used when no richer logger has been wired, and the
// logger of choice in tests.
type StdLogger struct {
	fields []any
}

func (l *StdLogger) line(args ...any) []any {
	if len(l.fields) == 0 {
		return args
	}

	return append(append([]any{}, args...), l.fields...)
}

func (l *StdLogger) Info(args ...any)  { log.Println(l.line(args...)...) }
func (l *StdLogger) Warn(args ...any)  { log.Println(l.line(args...)...) }
func (l *StdLogger) Error(args ...any) { log.Println(l.line(args...)...) }
func (l *StdLogger) Debug(args ...any) { log.Println(l.line(args...)...) }

func (l *StdLogger) Infof(format string, args ...any) {
	log.Println(l.line(fmt.Sprintf(format, args...))...)
}
func (l *StdLogger) Warnf(format string, args ...any) {
	log.Println(l.line(fmt.Sprintf(format, args...))...)
}
func (l *StdLogger) Errorf(format string, args ...any) {
	log.Println(l.line(fmt.Sprintf(format, args...))...)
}
func (l *StdLogger) Debugf(format string, args ...any) {
	log.Println(l.line(fmt.Sprintf(format, args...))...)
}
func (l *StdLogger) Fatalf(format string, args ...any) {
	log.Fatalln(l.line(fmt.Sprintf(format, args...))...)
}

func (l *StdLogger) WithFields(fields ...any) Logger {
	return &StdLogger{fields: append(append([]any{}, l.fields...), fields...)}
}

func (l *StdLogger) Sync() error { return nil }

type loggerContextKey struct{}

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext extracts the Logger previously attached with ContextWithLogger,
// falling back to a StdLogger when none is present.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return logger
	}

	return &StdLogger{}
}
