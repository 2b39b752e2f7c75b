// Package logging builds the zerolog loggers used by the CLI.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	loader "github.com/coyt0001/hcrecalls-dynamodb-loader"
)

// New returns a logger writing to w at level. format is "console" for human
// readable lines or "json".
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	switch format {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want console or json", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Component tags every line of l with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Session tags every line of l with an upload session id.
func Session(l zerolog.Logger, id string) zerolog.Logger {
	return l.With().Str("session", id).Logger()
}

// Loader adapts l for the loader package.
func Loader(l zerolog.Logger) loader.Logger {
	return loader.NewZeroLogger(Component(l, "loader"))
}
