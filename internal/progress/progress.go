// Package progress carries human-readable progress reporting through a context.
package progress

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Reporter receives progress lines. It is best effort and never an error channel.
type Reporter interface {
	Report(level Level, message string)
}

// Func adapts a function to Reporter.
type Func func(level Level, message string)

func (f Func) Report(level Level, message string) { f(level, message) }

type ctxKey struct{}

// With returns a context carrying r.
func With(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// From returns the reporter in ctx, or the log reporter when none is set.
func From(ctx context.Context) Reporter {
	if r, ok := ctx.Value(ctxKey{}).(Reporter); ok && r != nil {
		return r
	}
	return logReporter{}
}

func Info(ctx context.Context, msg string)    { From(ctx).Report(LevelInfo, msg) }
func Success(ctx context.Context, msg string) { From(ctx).Report(LevelSuccess, msg) }
func Warn(ctx context.Context, msg string)    { From(ctx).Report(LevelWarning, msg) }
func Error(ctx context.Context, msg string)   { From(ctx).Report(LevelError, msg) }

type logReporter struct{}

func (logReporter) Report(level Level, message string) {
	switch level {
	case LevelWarning:
		log.Warn(message)
	case LevelError:
		log.Error(message)
	default:
		log.Info(message)
	}
}

// Tee reports to every reporter in order.
func Tee(rs ...Reporter) Reporter {
	return Func(func(level Level, message string) {
		for _, r := range rs {
			r.Report(level, message)
		}
	})
}

// Log is the standalone reporter backed by logrus.
func Log() Reporter { return logReporter{} }
