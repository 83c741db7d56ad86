package utils

import (
	"os"
	"strconv"
	"strings"
)

// GetEnvTrimmed reads key with surrounding whitespace removed.
func GetEnvTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvTrimmedOrDefault treats a blank value the same as an unset one.
func GetEnvTrimmedOrDefault(key, fallback string) string {
	if v := GetEnvTrimmed(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvBool falls back on unset and unparsable values alike.
func GetEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(GetEnvTrimmed(key))
	if err != nil {
		return fallback
	}
	return b
}
