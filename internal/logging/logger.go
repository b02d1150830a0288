// Package logging wraps zerolog so that call sites in this module never
// import it directly. Unlike the teacher's process-wide DefaultLogger, this
// module hands each session its own Logger instance (see spec.md §9's note
// that a per-session logger is preferable to a singleton).
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog.Level so callers never import zerolog directly.
type Level int8

const (
	DebugLevel Level = Level(zerolog.DebugLevel)
	InfoLevel  Level = Level(zerolog.InfoLevel)
	WarnLevel  Level = Level(zerolog.WarnLevel)
	ErrorLevel Level = Level(zerolog.ErrorLevel)
	FatalLevel Level = Level(zerolog.FatalLevel)
	TraceLevel Level = Level(zerolog.TraceLevel)
	Disabled   Level = Level(zerolog.Disabled)
)

// ParseLevel parses a level string, returning an error on an unknown name.
func ParseLevel(s string) (Level, error) {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return Level(lvl), nil
}

func (l Level) String() string {
	return zerolog.Level(l).String()
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	lvl, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// Logger wraps zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// Event wraps zerolog.Event.
type Event struct {
	ze *zerolog.Event
}

// New builds a Logger writing to w at the given level, with appName bound
// as a fixed field on every line it emits.
func New(w io.Writer, level Level, appName string) Logger {
	zl := zerolog.New(w).Level(zerolog.Level(level)).With().
		Timestamp().
		Str("app", appName).
		Logger()
	return Logger{zl: zl}
}

// NewConsoleWriter returns a human-readable console writer, matching the
// teacher's NewConsoleWriter helper.
func NewConsoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

func (l Logger) Debug() Event { return Event{ze: l.zl.Debug()} }
func (l Logger) Info() Event  { return Event{ze: l.zl.Info()} }
func (l Logger) Warn() Event  { return Event{ze: l.zl.Warn()} }
func (l Logger) Error() Event { return Event{ze: l.zl.Error()} }
func (l Logger) Trace() Event { return Event{ze: l.zl.Trace()} }

// With starts a child-logger builder, e.g. l.With().Str("uuid", id).Logger().
func (l Logger) With() Context { return Context{zc: l.zl.With()} }

// Context wraps zerolog.Context.
type Context struct {
	zc zerolog.Context
}

func (c Context) Str(key, val string) Context { return Context{zc: c.zc.Str(key, val)} }
func (c Context) Logger() Logger              { return Logger{zl: c.zc.Logger()} }

func (e Event) Str(key, val string) Event                 { return Event{ze: e.ze.Str(key, val)} }
func (e Event) Int(key string, val int) Event             { return Event{ze: e.ze.Int(key, val)} }
func (e Event) Int64(key string, val int64) Event         { return Event{ze: e.ze.Int64(key, val)} }
func (e Event) Float64(key string, val float64) Event     { return Event{ze: e.ze.Float64(key, val)} }
func (e Event) Bool(key string, val bool) Event           { return Event{ze: e.ze.Bool(key, val)} }
func (e Event) Err(err error) Event                       { return Event{ze: e.ze.Err(err)} }
func (e Event) Dur(key string, val time.Duration) Event   { return Event{ze: e.ze.Dur(key, val)} }
func (e Event) Msg(msg string)                            { e.ze.Msg(msg) }
func (e Event) Msgf(format string, args ...interface{})   { e.ze.Msgf(format, args...) }
