package types

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks text shortened by TruncateWords
const Ellipsis = "…"

// RuneLen counts characters the way users see them, not bytes
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateWords shortens s to at most limit characters, ellipsis included.
// It cuts at the last word boundary when one exists in the second half of
// the allowed length, otherwise mid-word.
func TruncateWords(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	if RuneLen(s) <= limit {
		return s
	}
	if limit == 1 {
		return Ellipsis
	}

	runes := []rune(s)
	cut := runes[:limit-1]
	if i := lastSpace(cut); i > (limit-1)/2 {
		cut = cut[:i]
	}
	out := strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if out == "" {
		out = string(runes[:limit-1])
	}
	return out + Ellipsis
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}
