package textutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts value to at most limit runes. A non-positive limit disables
// truncation.
func Truncate(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

// SanitizeFileName makes value safe as a single path segment on common
// filesystems. Reserved characters become underscores, control characters are
// dropped, and the result is truncated to limit runes with surrounding spaces
// and dots trimmed.
func SanitizeFileName(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
	return strings.Trim(Truncate(strings.TrimSpace(value), limit), " .")
}
