package storage

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxFilenameLength is the rune limit applied when maxLen <= 0
const DefaultMaxFilenameLength = 100

const placeholderName = "untitled"

// SanitizeFilename makes s safe as a single path component on common
// filesystems. Control characters and \ / * ? : " < > | are removed,
// whitespace runs become one underscore, leading dots and surrounding
// underscores are trimmed, and the result is cut to maxLen runes.
func SanitizeFilename(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLength
	}

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		case unicode.IsControl(r):
			continue
		case strings.ContainsRune(`\/*?:"<>|`, r):
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}

	out := trimEdges(b.String())
	if utf8.RuneCountInString(out) > maxLen {
		out = trimEdges(string([]rune(out)[:maxLen]))
	}

	if out == "" {
		return placeholderName
	}
	return out
}

// trimEdges drops leading dots and underscores in any mix, so no name starts
// with a dot, and trailing underscores
func trimEdges(s string) string {
	return strings.TrimRight(strings.TrimLeft(s, "._"), "_")
}
