package tools

import (
	"os"
	"strings"
)

// GetenvDefault returns the value of key, or defaultValue when it is unset or blank.
func GetenvDefault(key string, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}
