package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks values that flags may have overridden since Load
func (c *Config) Validate() error {
	if c.Storage == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if _, ok := validLogLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported log level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("unsupported log format %q (valid: %s)", c.LogFormat, strings.Join([]string{"text", "json"}, ", "))
	}
	return nil
}

// Level returns the slog level of LogLevel
func (c *Config) Level() slog.Level {
	if level, ok := validLogLevels[c.LogLevel]; ok {
		return level
	}
	return slog.LevelInfo
}
