// Package logging provides the process-wide structured logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger, configured once by Initialize.
var Log zerolog.Logger

// Initialize configures the global logger. level is a zerolog level name
// ("debug", "info", "warn", "error"); pretty selects a human-readable
// console writer instead of JSON (used when the -v/--verbose flag is set).
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

	Log = log.With().Str("service", "rangeweave").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// Component returns a child logger tagged with a component name, the way
// the access-log and plugin-runtime call sites scope their output.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

func init() {
	// Safe default so packages that log before Initialize runs (tests,
	// early plugin registration) don't panic on a zero-value logger.
	Log = zerolog.New(os.Stderr).With().Timestamp().Str("service", "rangeweave").Logger()
}
