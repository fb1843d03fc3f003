// Package config provides configuration helpers for go-coworker commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default service configuration.
const (
	DefaultPort    = "8501"
	DefaultEnvFile = ".env"
)

// Error represents a configuration error. It is fatal at startup.
type Error struct {
	Key     string
	Message string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Message)
}

// IsConfigError reports whether err is (or wraps) a configuration error.
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment. Variables already set in the environment win. Missing files
// are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultEnvFile}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// String returns the env var value or the default when unset or blank.
func String(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Required returns the env var value or a *Error when it is unset.
func Required(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", &Error{Key: key, Message: "environment variable is required"}
	}
	return v, nil
}

// Bool parses a boolean env var. "false" and "0" are false; any other
// non-empty value is true.
func Bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v != "false" && v != "0"
}

// Int parses an integer env var, returning def on absence or parse failure.
func Int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration parses a time.Duration env var ("10s", "500ms").
func Duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
