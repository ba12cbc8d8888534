// Package logging configures the process-wide structured logger and
// hands out component-scoped children of it. The server and the
// pipeline engine take a zerolog.Logger as a constructor argument rather
// than reaching for a global, so WithComponent is the only thing callers
// need from here after Init.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging verbosity, named rather than zerolog's raw ints
// so config files stay readable.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // defaults to os.Stdout if nil
}

var base zerolog.Logger

// Init sets up the process-wide base logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		base = zerolog.New(output).With().Timestamp().Logger()
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with component — the
// logger every package constructor should be given.
func WithComponent(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
