// Package logger builds the root zerolog instance that every component
// derives its child loggers from.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New constructs the root logger. format "pretty" selects the
// human-readable console writer for local development; anything else
// emits JSON lines for log shippers. An unparseable level falls back
// to info instead of failing startup.
func New(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := zerolog.New(os.Stdout)
	if format == "pretty" {
		out = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	return out.With().Timestamp().Caller().Logger()
}
