package kyc

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// isLineBreak reports the runes treated as line boundaries in OCR output.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// Normalize trims every line of raw OCR text, drops the lines left empty and joins
// the rest with a single newline. Text is composed to NFC first so that accents
// emitted as combining marks compare equal to the precomposed label text.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	raw = norm.NFC.String(raw)

	parts := strings.FieldsFunc(raw, isLineBreak)
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n")
}
