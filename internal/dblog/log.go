// Package dblog provides the leveled logging facade used across ra and tm.
package dblog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the leveled logging calls the engine packages expect.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	SilentLevel
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger().Level(zerolog.WarnLevel)

// SetLevel changes the minimum level emitted by Debug/Info/Warning/Error.
func SetLevel(l Level) {
	switch l {
	case DebugLevel:
		logger = logger.Level(zerolog.DebugLevel)
	case InfoLevel:
		logger = logger.Level(zerolog.InfoLevel)
	case WarningLevel:
		logger = logger.Level(zerolog.WarnLevel)
	case ErrorLevel:
		logger = logger.Level(zerolog.ErrorLevel)
	case SilentLevel:
		logger = logger.Level(zerolog.Disabled)
	}
}

func Debug(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}

func Warning(format string, args ...interface{}) {
	logger.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	logger.Error().Msgf(format, args...)
}

// WithField returns a logger-scoped helper for correlating a batch of
// messages (e.g. all diagnostics for one transaction) under one field.
func WithField(key, value string) *Scoped {
	l := logger.With().Str(key, value).Logger()
	return &Scoped{l: l}
}

type Scoped struct {
	l zerolog.Logger
}

func (s *Scoped) Debug(format string, args ...interface{})   { s.l.Debug().Msgf(format, args...) }
func (s *Scoped) Info(format string, args ...interface{})    { s.l.Info().Msgf(format, args...) }
func (s *Scoped) Warning(format string, args ...interface{}) { s.l.Warn().Msgf(format, args...) }
func (s *Scoped) Error(format string, args ...interface{})   { s.l.Error().Msgf(format, args...) }
