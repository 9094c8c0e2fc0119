// Package logging configures structured logging for the EDC client using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is a textual logging level as it appears in configuration.
type Level string

const (
	// LevelDebug logs every request attempt and cache decision.
	LevelDebug Level = "debug"

	// LevelInfo logs schema refreshes and job outcomes.
	LevelInfo Level = "info"

	// LevelWarn logs retries and error responses.
	LevelWarn Level = "warn"

	// LevelError logs failed requests only.
	LevelError Level = "error"

	// LevelDisabled silences the logger.
	LevelDisabled Level = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Loggers created by NewLogger
// afterwards inherit its output and level.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a configured level to zerolog.Level. Unknown values
// fall back to info.
func ParseLevel(level Level) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithStudy returns a child logger tagged with the study key.
func WithStudy(logger zerolog.Logger, studyKey string) zerolog.Logger {
	if studyKey == "" {
		return logger
	}
	return logger.With().Str("study_key", studyKey).Logger()
}

// Field conventions:
//
//   - component: package that emitted the event (edc-client, endpoint, schema, jobs)
//   - method, path, request_id: one logical request
//   - attempt, backoff, status, error_kind: retry decisions
//   - resource, study_key, cache: list/get cache decisions
//   - batch_id, state, polls: job polling
//
// Retries and error responses log at warn, exhausted requests at error,
// cache hits and page fetches at debug.
