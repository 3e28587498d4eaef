package utils

import "unicode/utf8"

// Truncate cuts s to at most maxLen runes and marks the cut with "...".
// Multi-byte characters such as µ or Å are never split.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
