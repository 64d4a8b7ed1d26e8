package logger

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
)

// Logger is the leveled logger shared by every component.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
}

type requestIDKey struct{}

var levels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

type implLogger struct {
	logger *log.Logger
	level  int
}

// New creates a Logger writing to stdout.
func New(level string) Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter creates a Logger writing to w. Unknown levels fall back to info.
func NewWithWriter(w io.Writer, level string) Logger {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		lvl = levels["info"]
	}
	return &implLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  lvl,
	}
}

// Discard returns a Logger that drops everything, for tests.
func Discard() Logger {
	return NewWithWriter(io.Discard, "error")
}

// WithRequestID tags ctx so log lines emitted with it carry the id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (l *implLogger) shouldLog(level string) bool {
	target, ok := levels[level]
	if !ok {
		return true
	}
	return target >= l.level
}

func (l *implLogger) print(ctx context.Context, level, tag, msg string, args []interface{}) {
	if !l.shouldLog(level) {
		return
	}
	prefix := tag + " "
	if id := RequestID(ctx); id != "" {
		prefix += "[" + id + "] "
	}
	l.logger.Printf(prefix+msg, args...)
}

func (l *implLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, "debug", "[DEBUG]", msg, args)
}

func (l *implLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, "info", "[INFO]", msg, args)
}

func (l *implLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, "warn", "[WARN]", msg, args)
}

func (l *implLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, "error", "[ERROR]", msg, args)
}
