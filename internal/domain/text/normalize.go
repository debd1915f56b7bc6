// Package text canonicalizes free-text calls so they can be matched.
package text

import (
	"strings"
)

// Normalize trims, lowercases and collapses whitespace runs to one space.
// It is total and idempotent.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// Valid reports whether raw survives normalization as non-empty text.
func Valid(raw string) bool {
	return Normalize(raw) != ""
}
