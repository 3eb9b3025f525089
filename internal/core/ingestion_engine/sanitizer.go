package ingestion_engine

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	excessBlanks   = regexp.MustCompile(`[ \t]{2,}`)
)

// Sanitize normalises extracted text before chunking. It drops NUL and other
// control characters except tab, newline and carriage return. It also drops the
// Specials block (including U+FFFD), private-use code points and noncharacters.
// Runs of 3+ newlines become two, runs of spaces or tabs become one space, and
// the result is trimmed. Sanitize is idempotent.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if dropRune(r) {
			return -1
		}
		return r
	}, raw)

	cleaned = excessNewlines.ReplaceAllString(cleaned, "\n\n")
	cleaned = excessBlanks.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func dropRune(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20 || r == 0x7F:
		return true
	case r >= 0x80 && r <= 0x9F: // C1 controls
		return true
	case r >= 0xFFF0 && r <= 0xFFFF: // specials block, includes U+FFFD
		return true
	case unicode.Is(unicode.Co, r): // private use
		return true
	case isNoncharacter(r):
		return true
	}
	return false
}

// isNoncharacter covers U+FDD0..U+FDEF and the last two code points of every plane.
func isNoncharacter(r rune) bool {
	if r >= 0xFDD0 && r <= 0xFDEF {
		return true
	}
	return r&0xFFFE == 0xFFFE
}
