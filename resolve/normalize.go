package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize maps a surface form onto its matching key: Unicode case folding,
// NFKC composition, collapsed whitespace and trimmed surrounding punctuation.
func Normalize(text string) string {
	s := norm.NFKC.String(folder.String(text))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, unicode.IsPunct)
}

// asciiLetters keeps only a-z, for phonetic codes.
func asciiLetters(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
