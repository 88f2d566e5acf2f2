package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CaptionLimit is the number of runes of narration carried into a caption.
const CaptionLimit = 100

// Normalize returns s in Unicode NFC.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// CollapseWhitespace replaces runs of whitespace with single spaces and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// ManualCaption derives a caption from operator-supplied script text.
func ManualCaption(script string) string {
	return CollapseWhitespace(TruncateRunes(Normalize(script), CaptionLimit))
}

// GeneratedCaption derives a caption from provider output: the leading
// narration followed by the hashtags.
func GeneratedCaption(script string, hashtags []string) string {
	parts := []string{ManualCaption(script)}
	for _, tag := range hashtags {
		if tag = strings.TrimSpace(tag); tag != "" {
			parts = append(parts, tag)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
