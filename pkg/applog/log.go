// Package applog defines the structured logging contract used across the
// platform: every service, repository, and scheduler takes a Logger rather
// than reaching for the global log package directly.
package applog

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the common interface every component logs through.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

// Level represents a log severity.
type Level int8

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

// ParseLevel takes a string level and returns a Level constant.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(lvl) {
	case "fatal":
		return FatalLevel, nil
	case "error":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}

	var l Level

	return l, fmt.Errorf("not a valid log level: %q", lvl)
}

// stdLogger is a minimal Logger used when no Logger has been wired into a
// context yet (tests, early bootstrap). Production code paths use the
// zap-backed implementation in zap.go.
type stdLogger struct {
	level  Level
	fields []any
}

// NewStd returns a Logger backed directly by the standard library's log
// package, used only before the zap logger has been constructed.
func NewStd(level Level) Logger {
	return &stdLogger{level: level}
}

func (l *stdLogger) enabled(level Level) bool { return l.level >= level }

func (l *stdLogger) Info(args ...any) {
	if l.enabled(InfoLevel) {
		log.Print(args...)
	}
}

func (l *stdLogger) Infof(format string, args ...any) {
	if l.enabled(InfoLevel) {
		log.Printf(format, args...)
	}
}

func (l *stdLogger) Error(args ...any) {
	if l.enabled(ErrorLevel) {
		log.Print(args...)
	}
}

func (l *stdLogger) Errorf(format string, args ...any) {
	if l.enabled(ErrorLevel) {
		log.Printf(format, args...)
	}
}

func (l *stdLogger) Warn(args ...any) {
	if l.enabled(WarnLevel) {
		log.Print(args...)
	}
}

func (l *stdLogger) Warnf(format string, args ...any) {
	if l.enabled(WarnLevel) {
		log.Printf(format, args...)
	}
}

func (l *stdLogger) Debug(args ...any) {
	if l.enabled(DebugLevel) {
		log.Print(args...)
	}
}

func (l *stdLogger) Debugf(format string, args ...any) {
	if l.enabled(DebugLevel) {
		log.Printf(format, args...)
	}
}

func (l *stdLogger) WithFields(fields ...any) Logger {
	return &stdLogger{level: l.level, fields: append(append([]any{}, l.fields...), fields...)}
}

func (l *stdLogger) Sync() error { return nil }

type loggerContextKey struct{}

// FromContext extracts the Logger stored in ctx, falling back to an
// info-level std logger if none was set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return logger
	}

	return NewStd(InfoLevel)
}

// ContextWith returns a context carrying logger.
func ContextWith(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}
