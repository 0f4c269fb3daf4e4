// Package logger provides leveled logging for the indexer, backed by zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents the logging level.
type Level int

// Log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return ""
	}
}

// ParseLevel maps a level name ("debug", "info", "warn", "error", "none") to a
// Level. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off", "disabled":
		return LevelNone
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// Logger provides logging functionality.
type Logger struct {
	mu     sync.RWMutex
	level  Level
	output io.Writer
	zl     zerolog.Logger
}

const component = "fhir-indexer"

var defaultLogger = New(os.Stderr, LevelInfo)

// Default returns the default logger.
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// New creates a logger writing JSON lines to output.
func New(output io.Writer, level Level) *Logger {
	l := &Logger{level: level, output: output}
	l.rebuild()
	return l
}

// NewConsole creates a logger writing human-readable lines to output.
func NewConsole(output io.Writer, level Level) *Logger {
	return New(zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}, level)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, LevelNone)
}

// rebuild must be called with mu held for writing (or before l is shared).
func (l *Logger) rebuild() {
	l.zl = zerolog.New(l.output).
		Level(l.level.zerolog()).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuild()
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// Zerolog returns the underlying zerolog logger for structured fields.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl
}

func (l *Logger) event(level Level) *zerolog.Event {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()

	switch level {
	case LevelDebug:
		return zl.Debug()
	case LevelInfo:
		return zl.Info()
	case LevelWarn:
		return zl.Warn()
	default:
		return zl.Error()
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	e := l.event(level)
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugEvent starts a structured debug event. It returns nil (a no-op event
// in zerolog) when debug logging is disabled.
func (l *Logger) DebugEvent() *zerolog.Event {
	return l.event(LevelDebug)
}

// InfoEvent starts a structured info event.
func (l *Logger) InfoEvent() *zerolog.Event {
	return l.event(LevelInfo)
}

// WarnEvent starts a structured warning event.
func (l *Logger) WarnEvent() *zerolog.Event {
	return l.event(LevelWarn)
}

// Package-level convenience functions.

// Debug logs a debug message using the default logger.
func Debug(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

// Info logs an info message using the default logger.
func Info(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Error logs an error message using the default logger.
func Error(format string, args ...any) {
	defaultLogger.Error(format, args...)
}

// SetLevel sets the level of the default logger.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the output of the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}
