package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger defines a generic structured logging interface. keyvals are
// alternating keys and values.
type Logger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
	SetLevel(level string)
	With(keyvals ...interface{}) Logger
}

// ZerologLogger implements Logger using zerolog.
type ZerologLogger struct {
	zlog zerolog.Logger
}

// New builds a logger for serviceName writing to stdout. format is
// "console" for human readable output or "json".
func New(serviceName, level, format string) *ZerologLogger {
	var out io.Writer = os.Stdout
	if format == "console" {
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		console.FormatLevel = func(i any) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		out = console
	}
	l := NewWithWriter(out, serviceName)
	l.SetLevel(level)
	return l
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(w io.Writer, serviceName string) *ZerologLogger {
	z := zerolog.New(w).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return &ZerologLogger{zlog: z}
}

// NewNop returns a logger that discards everything.
func NewNop() *ZerologLogger {
	return &ZerologLogger{zlog: zerolog.Nop()}
}

func (l *ZerologLogger) Info(msg string, keyvals ...interface{}) {
	l.write(l.zlog.Info(), msg, keyvals)
}

func (l *ZerologLogger) Warn(msg string, keyvals ...interface{}) {
	l.write(l.zlog.Warn(), msg, keyvals)
}

func (l *ZerologLogger) Error(msg string, keyvals ...interface{}) {
	l.write(l.zlog.Error(), msg, keyvals)
}

func (l *ZerologLogger) Debug(msg string, keyvals ...interface{}) {
	l.write(l.zlog.Debug(), msg, keyvals)
}

func (l *ZerologLogger) write(event *zerolog.Event, msg string, keyvals []interface{}) {
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, keyvals[i+1])
	}
	event.Msg(msg)
}

// SetLevel sets the minimum level of this logger. Unknown levels mean info.
func (l *ZerologLogger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l.zlog = l.zlog.Level(lvl)
}

// With returns a child logger that always includes keyvals.
func (l *ZerologLogger) With(keyvals ...interface{}) Logger {
	ctx := l.zlog.With()
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return &ZerologLogger{zlog: ctx.Logger()}
}
