package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process root logger. Format "console" uses the development
// writer; anything else emits JSON lines to stdout. Unknown levels fall back
// to info.
func New(level, format string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(parsed).With().Timestamp().Logger()
}
