// Package applog builds the single zerolog.Logger every command and
// component in this module logs through.
package applog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options configures logger construction.
type Options struct {
	// Level is one of zerolog's level names: "debug", "info", "warn",
	// "error". Defaults to "info" on an empty or unrecognized value.
	Level string

	// Format is "console" (human-readable, colorized if the terminal
	// supports it) or "json" (one object per line, for log aggregation).
	// Defaults to "console".
	Format string
}

// New builds a zerolog.Logger writing to stderr per opts.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if strings.ToLower(opts.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
