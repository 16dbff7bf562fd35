// Package logging provides a small level-prefixed wrapper over the
// standard library logger: plain log.Printf calls generalized into
// levels since this service runs unattended rather than as an
// interactive CLI.
package logging

import (
	"io"
	"log"
	"os"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a level-filtered wrapper over *log.Logger.
type Logger struct {
	min Level
	std *log.Logger
}

// New creates a Logger writing to w, filtering below min.
func New(w io.Writer, min Level) *Logger {
	return &Logger{min: min, std: log.New(w, "", log.LstdFlags)}
}

// Default returns a Logger at LevelInfo writing to stderr.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

func (l *Logger) log(level Level, prefix, format string, args []any) {
	if level < l.min {
		return
	}
	l.std.Printf(prefix+" "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, "[debug]", format, args) }
func (l *Logger) Infof(format string, args ...any)   { l.log(LevelInfo, "[info]", format, args) }
func (l *Logger) Warnf(format string, args ...any)   { l.log(LevelWarn, "[warn]", format, args) }
func (l *Logger) Errorf(format string, args ...any)  { l.log(LevelError, "[error]", format, args) }

// With returns a Logger that prefixes every message with a component tag,
// e.g. log.With("fileindex").Infof("scanned %d files", n).
func (l *Logger) With(component string) *Logger {
	return &Logger{min: l.min, std: log.New(l.std.Writer(), "["+component+"] ", log.LstdFlags)}
}
