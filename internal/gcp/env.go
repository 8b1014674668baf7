package gcp

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable. Unparseable values are
// logged and ignored.
func GetEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring invalid integer environment variable.", "key", key, "value", value, "error", err)
		return fallback
	}
	return n
}

// GetEnvFloat reads a float environment variable.
func GetEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		slog.Warn("Ignoring invalid float environment variable.", "key", key, "value", value, "error", err)
		return fallback
	}
	return f
}

// GetEnvBool reads a boolean environment variable ("1", "true", "no", ...).
func GetEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring invalid boolean environment variable.", "key", key, "value", value, "error", err)
		return fallback
	}
	return b
}

// EnvKey maps a flag name like "parallel-files" to "SAFEOCR_PARALLEL_FILES".
func EnvKey(flag string) string {
	return "SAFEOCR_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
