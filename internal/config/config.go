// Package config loads process configuration from the environment using the
// accumulate-then-report pattern: every override is parsed independently and
// invalid values are collected into a single combined error instead of
// failing on the first bad variable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLogLevel controls verbosity for process logs.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// LoggingConfig captures structured logging configuration options shared by
// every ivis process.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// problems accumulates configuration validation failures so Load can report
// every invalid override in one error instead of stopping at the first.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(p, "; "))
}

// LoadLogging reads the shared logging fragment using the given prefix, e.g.
// "INGEST_LOG" yields INGEST_LOG_LEVEL, INGEST_LOG_PATH, and so on.
func LoadLogging(prefix, defaultPath string) (LoggingConfig, error) {
	var probs problems
	cfg := LoggingConfig{
		Level:      strings.TrimSpace(getString(prefix+"_LEVEL", DefaultLogLevel)),
		Path:       strings.TrimSpace(getString(prefix+"_PATH", defaultPath)),
		MaxSizeMB:  DefaultLogMaxSizeMB,
		MaxBackups: DefaultLogMaxBackups,
		MaxAgeDays: DefaultLogMaxAgeDays,
		Compress:   DefaultLogCompress,
	}

	if raw := strings.TrimSpace(os.Getenv(prefix + "_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			probs.addf("%s_MAX_SIZE_MB must be a positive integer, got %q", prefix, raw)
		} else {
			cfg.MaxSizeMB = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv(prefix + "_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			probs.addf("%s_MAX_BACKUPS must be a non-negative integer, got %q", prefix, raw)
		} else {
			cfg.MaxBackups = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv(prefix + "_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			probs.addf("%s_MAX_AGE_DAYS must be a non-negative integer, got %q", prefix, raw)
		} else {
			cfg.MaxAgeDays = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv(prefix + "_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			probs.addf("%s_COMPRESS must be a boolean value, got %q", prefix, raw)
		} else {
			cfg.Compress = value
		}
	}

	return cfg, probs.err()
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(probs *problems, key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		probs.addf("%s must be an integer, got %q", key, raw)
		return fallback
	}
	return value
}

func getInt64(probs *problems, key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		probs.addf("%s must be an integer, got %q", key, raw)
		return fallback
	}
	return value
}

func getFloat(probs *problems, key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		probs.addf("%s must be a number, got %q", key, raw)
		return fallback
	}
	return value
}

func getBool(probs *problems, key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		probs.addf("%s must be a boolean, got %q", key, raw)
		return fallback
	}
	return value
}

func getDuration(probs *problems, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		probs.addf("%s must be a duration, got %q", key, raw)
		return fallback
	}
	return value
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
