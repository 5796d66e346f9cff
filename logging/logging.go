// Package logging builds the zerolog logger shared by the functions.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stdout, which Lambda forwards to
// CloudWatch. format "console" gives human readable output for local runs.
func New(level, format, function string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format, function)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format, function string) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	ctx := zerolog.New(w).Level(parseLevel(level)).With().Timestamp()
	if function != "" {
		ctx = ctx.Str("function", function)
	}
	return ctx.Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
