// Package simlog wraps github.com/joeycumines/logiface (backed by zerolog,
// via github.com/joeycumines/izerolog) as the simulator's structured
// logging facade, the way the teacher's own packages layer a thin,
// domain-specific API over logiface rather than calling zerolog directly.
//
// Everything in this package is a handful of chained method calls over
// *logiface.Builder[*izerolog.Event]; it exists purely so the rest of the
// module depends on simlog.Logger instead of leaking the backend choice.
package simlog

import (
	"io"
	"time"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the simulator's structured logger handle.
type Logger struct {
	l *logiface.Logger[*izerolog.Event]
}

// New builds a Logger writing newline-delimited JSON to w at the given
// minimum level.
func New(w io.Writer, level logiface.Level) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return Logger{l: izerolog.L.New(
		izerolog.WithZerolog(zl),
		izerolog.L.WithLevel(level),
	)}
}

// Nop returns a Logger that discards everything, for tests and for
// components run without a configured sink.
func Nop() Logger {
	return New(io.Discard, logiface.LevelEmergency)
}

// With returns a derived Logger with key=val attached to every subsequent
// event, mirroring zerolog's own With().
func (l Logger) With(key string, val any) Logger {
	if l.l == nil {
		return l
	}
	return Logger{l: l.l.Clone().Any(key, val).Logger()}
}

// Event is a single in-flight log entry being built up.
type Event struct {
	b *logiface.Builder[*izerolog.Event]
}

func (l Logger) build(level logiface.Level) Event {
	if l.l == nil {
		return Event{}
	}
	switch level {
	case logiface.LevelError:
		return Event{b: l.l.Err()}
	case logiface.LevelWarning:
		return Event{b: l.l.Warning()}
	case logiface.LevelDebug:
		return Event{b: l.l.Debug()}
	default:
		return Event{b: l.l.Info()}
	}
}

// Info starts an informational event.
func (l Logger) Info() Event { return l.build(logiface.LevelInformational) }

// Warn starts a warning event.
func (l Logger) Warn() Event { return l.build(logiface.LevelWarning) }

// Error starts an error event.
func (l Logger) Error() Event { return l.build(logiface.LevelError) }

// Debug starts a debug event.
func (l Logger) Debug() Event { return l.build(logiface.LevelDebug) }

func (e Event) Str(key, val string) Event {
	if e.b != nil {
		e.b = e.b.Str(key, val)
	}
	return e
}

func (e Event) Int(key string, val int) Event {
	if e.b != nil {
		e.b = e.b.Int(key, val)
	}
	return e
}

func (e Event) Uint64(key string, val uint64) Event {
	if e.b != nil {
		e.b = e.b.Uint64(key, val)
	}
	return e
}

func (e Event) Dur(key string, val time.Duration) Event {
	if e.b != nil {
		e.b = e.b.Dur(key, val)
	}
	return e
}

func (e Event) Time(key string, val time.Time) Event {
	if e.b != nil {
		e.b = e.b.Time(key, val)
	}
	return e
}

func (e Event) Err(err error) Event {
	if e.b != nil {
		e.b = e.b.Err(err)
	}
	return e
}

// Log finalizes and emits the event with the given message.
func (e Event) Log(msg string) {
	if e.b != nil {
		e.b.Log(msg)
	}
}
