package util

import (
	"strings"
	"unicode"
)

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// FoldSpace collapses runs of whitespace into single spaces and trims the
// result. Used when comparing names that came out of free text.
func FoldSpace(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	inSpace := false
	for _, r := range value {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
