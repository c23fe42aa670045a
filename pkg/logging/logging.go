// Package logging provides structured logging configuration using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level
	// JSON enables JSON output format.
	JSON bool
	// Output is the writer to write logs to. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a text logger at the level named by LOG_LEVEL
// (DEBUG, INFO, WARN, ERROR). Defaults to INFO.
func DefaultConfig() Config {
	return New(os.Getenv("LOG_LEVEL"), false)
}

// New returns a configuration for the named level writing to stderr.
func New(level string, json bool) Config {
	return Config{
		Level:  ParseLevel(level),
		JSON:   json,
		Output: os.Stderr,
	}
}

// WithDebug lowers the level to DEBUG when debug is set.
func (c Config) WithDebug(debug bool) Config {
	if debug {
		c.Level = slog.LevelDebug
	}
	return c
}

// ParseLevel converts a string log level to slog.Level. Unknown values
// map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the default slog logger with the given configuration.
func Setup(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
