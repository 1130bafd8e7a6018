package utils

import "strings"

const maxFilenameRunes = 100

// SanitizeFilename strips characters that are unsafe on common
// filesystems, collapses whitespace to underscores and caps the result
// at 100 runes. Arabic text passes through untouched.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '\\', '/', '*', '?', ':', '"', '<', '>', '|', '\n', '\r':
			continue
		case ' ', '\t':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	runes := []rune(b.String())
	if len(runes) > maxFilenameRunes {
		runes = runes[:maxFilenameRunes]
	}
	return string(runes)
}
