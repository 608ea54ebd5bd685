package amp

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logger the client reports through. keyvals are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// NewConsoleLogger returns a human readable zerolog logger writing to w
// (stderr when nil) at level.
func NewConsoleLogger(w io.Writer, level zerolog.Level) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(level).
		With().
		Timestamp().
		Str("component", "amp").
		Logger()
	return NewZerologLogger(logger)
}

func (l *ZerologLogger) Debug(msg string, keyvals ...any) { l.log(l.logger.Debug(), msg, keyvals) }
func (l *ZerologLogger) Info(msg string, keyvals ...any)  { l.log(l.logger.Info(), msg, keyvals) }
func (l *ZerologLogger) Warn(msg string, keyvals ...any)  { l.log(l.logger.Warn(), msg, keyvals) }
func (l *ZerologLogger) Error(msg string, keyvals ...any) { l.log(l.logger.Error(), msg, keyvals) }

func (l *ZerologLogger) log(ev *zerolog.Event, msg string, keyvals []any) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			ev.AnErr(key, err)
			continue
		}
		ev.Interface(key, keyvals[i+1])
	}
	ev.Msg(msg)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}
