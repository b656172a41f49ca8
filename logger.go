package terminal

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel filters what StdLogger emits. Lower levels are noisier.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) label() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger is the key/value logging contract this package writes to.
// Embedders usually adapt their own logging stack to it; NopLogger and
// StdLogger cover tests and standalone binaries.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// StdLogger prints level-filtered lines through a standard library logger.
type StdLogger struct {
	out      *log.Logger
	minLevel LogLevel
}

// NewStdLogger writes timestamped lines to stderr, keeping stdout free for
// program output.
func NewStdLogger(minLevel LogLevel) *StdLogger {
	return &StdLogger{
		out:      log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		minLevel: minLevel,
	}
}

func (l *StdLogger) Debug(msg string, kv ...any) { l.emit(LogDebug, msg, kv) }
func (l *StdLogger) Info(msg string, kv ...any)  { l.emit(LogInfo, msg, kv) }
func (l *StdLogger) Warn(msg string, kv ...any)  { l.emit(LogWarn, msg, kv) }
func (l *StdLogger) Error(msg string, kv ...any) { l.emit(LogError, msg, kv) }

func (l *StdLogger) emit(level LogLevel, msg string, kv []any) {
	if l == nil || l.out == nil || level < l.minLevel {
		return
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.label())
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=", kv[i])
		if i+1 < len(kv) {
			fmt.Fprintf(&b, "%v", kv[i+1])
		} else {
			b.WriteString("<missing>")
		}
	}
	l.out.Print(b.String())
}
