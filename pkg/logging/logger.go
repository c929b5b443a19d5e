// Package logging configures zerolog for the Mattermost client and hands out
// component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name accepted in configuration.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used with NewLogger.
const (
	ComponentClient     = "mm-client"
	ComponentPagination = "pagination"
	ComponentCLI        = "mmc"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written. Unknown names mean info.
	Level LogLevel

	// Pretty writes colored console lines instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs cfg as the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

func (l LogLevel) zerolog() zerolog.Level {
	level, err := ParseLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}

	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel validates a level name from a flag or config file. Matching is
// case-insensitive, "warning" means warn and the empty string means info.
func ParseLevel(s string) (LogLevel, error) {
	switch name := strings.ToLower(s); name {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	case string(LevelDebug), string(LevelInfo), string(LevelWarn), string(LevelError):
		return LogLevel(name), nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// NewLogger returns the global logger tagged with component. Call it after
// Setup; loggers keep the output they were created with.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels:
//
// Debug: request flow, cache hit/miss, conditional requests, page advances
// Info: batch fetch start/finish, cache purges
// Warn: retries, rate limit waits, cache errors, partial results
// Error: requests that failed after retries
//
// Context fields:
//   - endpoint: API path with ids collapsed
//   - method, status: HTTP method and status code
//   - error_class: client, server, rate_limit or network
//   - page, before, channel_id: pagination position
//   - etag: ETag sent in a conditional request
//   - ttl: cache entry TTL
