package copilot

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var listMarker = regexp.MustCompile(`^[-*0-9.]+\s*`)

// ParseSuggestions splits a completion into individual questions. Leading
// bullets and numbering are stripped, and lines shorter than minLen runes
// after stripping are discarded.
func ParseSuggestions(raw string, minLen int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		s := listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		if s == "" || utf8.RuneCountInString(s) < minLen {
			continue
		}
		out = append(out, s)
	}
	return out
}
