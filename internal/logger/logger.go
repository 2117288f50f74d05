// Package logger provides the leveled, component-scoped logger used by
// every other package in this module. The shape (Debugf/Infof/Warningf/
// Errorf on a struct value that is safe to use at its zero value) follows
// the teacher's (cloudprober) logger.Logger convention: components hold a
// *Logger field, default it to &Logger{} when the caller passes nil, and
// never import a logging package directly in their own API surface.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is safe to use at its zero value: a nil-safe, no-frills logger
// that writes to stderr at info level. Components should never construct
// zerolog directly; they take a *Logger and call its leveled methods.
type Logger struct {
	name  string
	debug bool
	zl    zerolog.Logger
}

// New returns a Logger scoped to name, writing to w (os.Stderr if nil).
// debug enables Debugf output, mirroring the APP_DEBUG environment flag.
func New(name string, debug bool, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().Timestamp().Str("component", name).Logger()
	return &Logger{name: name, debug: debug, zl: zl}
}

func (l *Logger) ensure() *Logger {
	if l == nil {
		return &Logger{zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}
	}
	return l
}

// Named returns a child logger scoped to a sub-component name, e.g.
// strategy names within the registry ("source", "minecraft", ...).
func (l *Logger) Named(name string) *Logger {
	l = l.ensure()
	return &Logger{name: name, debug: l.debug, zl: l.zl.With().Str("strategy", name).Logger()}
}

// Debugf logs at debug level. A no-op when debug logging is disabled,
// matching the teacher's APP_DEBUG-gated verbose logging.
func (l *Logger) Debugf(format string, args ...any) {
	l = l.ensure()
	if !l.debug {
		return
	}
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.ensure().zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warningf logs at warn level.
func (l *Logger) Warningf(format string, args ...any) {
	l.ensure().zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.ensure().zl.Error().Msg(fmt.Sprintf(format, args...))
}
