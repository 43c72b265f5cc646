package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Components derive scoped loggers with
// With so every line carries a component field.
type Logger struct {
	log zerolog.Logger
}

func NewLogger() *Logger {
	return NewLoggerWithOptions(os.Stdout, "", "info")
}

// NewLoggerWithOptions builds a JSON logger writing to out; appEnv "dev"
// switches to the human-readable console writer.
func NewLoggerWithOptions(out io.Writer, appEnv, level string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	var z zerolog.Logger
	if strings.EqualFold(appEnv, "dev") {
		z = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		z = zerolog.New(out).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &Logger{log: z.Level(lvl)}
}

func NopLogger() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{log: l.log.With().Str("component", component).Logger()}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Error().Msgf(format, args...)
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
