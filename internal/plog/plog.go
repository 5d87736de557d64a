// Package plog provides the structured logger shared by the writer and
// interceptor, adapted from the teacher's internal/logger package: a
// single zerolog.Logger configured once, with named component loggers
// handed out via With().Str("component", name).
package plog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var base zerolog.Logger

func init() {
	base = log.With().Str("service", "pgaudit").Logger()
}

// Initialize reconfigures the shared logger. Safe to call once at process
// startup; component loggers obtained before a call to Initialize continue
// to reflect the previous configuration since zerolog.Logger is a value
// type, so callers should fetch components after Initialize.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	base = log.With().Str("service", "pgaudit").Logger()
}

// Component returns a logger tagged with the given component name, e.g.
// "writer" or "interceptor".
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
