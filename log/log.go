// Package log provides a structured, leveled logger in the style of the
// upstream go-ethereum log package, built directly on log/slog instead of
// vendoring that package as a dependency.
package log

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-stack/stack"
)

// Level mirrors the slog level constants under names used throughout the
// node (Trace has no slog equivalent so it is modeled one notch below Debug).
const (
	LevelCrit  = slog.Level(12)
	LevelError = slog.LevelError
	LevelWarn  = slog.LevelWarn
	LevelInfo  = slog.LevelInfo
	LevelDebug = slog.LevelDebug
	LevelTrace = slog.Level(-8)
)

// Logger writes leveled, structured records. It is safe for concurrent use.
type Logger struct {
	inner *slog.Logger
}

var root = &Logger{inner: slog.New(NewTerminalHandler(os.Stderr, false))}

// SetDefault installs l as the package-level logger used by the free
// functions below (Trace, Debug, Info, Warn, Error, Crit).
func SetDefault(l *Logger) {
	root = l
}

// New returns a child logger with the given key/value pairs attached to
// every record it emits.
func New(ctx ...interface{}) *Logger {
	return &Logger{inner: root.inner.With(ctx...)}
}

// NewLogger wraps an arbitrary slog.Handler.
func NewLogger(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

func (l *Logger) With(ctx ...interface{}) *Logger {
	return &Logger{inner: l.inner.With(ctx...)}
}

func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LevelTrace, msg, ctx...) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LevelDebug, msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LevelInfo, msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LevelWarn, msg, ctx...) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LevelError, msg, ctx...) }

// Crit logs at the highest severity, attaches a caller stack, and terminates
// the process, mirroring upstream go-ethereum log.Crit.
func (l *Logger) Crit(msg string, ctx ...interface{}) {
	ctx = append(ctx, "stack", stack.Trace().TrimRuntime())
	l.log(LevelCrit, msg, ctx...)
	os.Exit(1)
}

func (l *Logger) log(level slog.Level, msg string, ctx ...interface{}) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.Add(ctx...)
	_ = l.inner.Handler().Handle(context.Background(), r)
}

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
