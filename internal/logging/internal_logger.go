package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// InternalLogger is the printf style logger handed to background tasks.
type InternalLogger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Sink receives one formatted line.
type Sink func(level Level, msg string)

var _ InternalLogger = (*LineLogger)(nil)

// LineLogger formats every call once and fans the line out to its sinks in order.
type LineLogger struct {
	sinks []Sink
}

func NewLineLogger(sinks ...Sink) *LineLogger {
	return &LineLogger{sinks: sinks}
}

func (l *LineLogger) Info(format string, args ...any) {
	l.emit(LevelInfo, format, args)
}

func (l *LineLogger) Warn(format string, args ...any) {
	l.emit(LevelWarn, format, args)
}

func (l *LineLogger) Error(format string, args ...any) {
	l.emit(LevelError, format, args)
}

func (l *LineLogger) emit(level Level, format string, args []any) {
	msg := fmt.Sprintf(format, args...)
	for _, sink := range l.sinks {
		sink(level, msg)
	}
}

// ZerologSink writes lines to logger at the matching level.
func ZerologSink(logger zerolog.Logger) Sink {
	return func(level Level, msg string) {
		switch level {
		case LevelError:
			logger.Error().Msg(msg)
		case LevelWarn:
			logger.Warn().Msg(msg)
		default:
			logger.Info().Msg(msg)
		}
	}
}

var _ InternalLogger = NopLogger{}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
