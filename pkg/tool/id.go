package tool

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortPrefix returns at most the first n characters of s.
func ShortPrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Mask hides all but the last keep characters, e.g. for phone numbers in logs.
func Mask(s string, keep int) string {
	if len(s) <= keep {
		return s
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}
