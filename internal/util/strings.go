package util

import "unicode/utf8"

// SafeTruncate returns at most maxLen bytes of s without splitting a UTF-8
// sequence. A negative maxLen yields the empty string.
//
//	SafeTruncate("b1946ac92492d2347c6235b4d2611184", 8) // "b1946ac9"
//	SafeTruncate("short", 10)                          // "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	end := maxLen
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
