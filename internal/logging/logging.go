// Package logging centralizes zerolog setup: a single global Logger
// configured once by the hosting binary (cmd/swarmd), with WithComponent
// used by every internal package to get a child logger tagged with its
// name.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Components should not log
// through it directly; call WithComponent instead.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// Config controls how Init configures the global logger.
type Config struct {
	Debug      bool
	JSONOutput bool
	Output     io.Writer
}

// Init replaces the global logger. Call once from main before any
// component logs; safe to skip in tests, which get the sane console
// default from init().
func Init(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given component
// name, the pattern every internal package uses for its package-level
// logger.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
