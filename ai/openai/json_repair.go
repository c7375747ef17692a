package openai

import (
	"strings"
	"unicode"
)

// repairJSON patches two mistakes small models make when emitting JSON: a
// comma left before a closing bracket, and an object key that lost its
// opening quote. String literals pass through untouched.
func repairJSON(s string) string {
	src := []rune(s)
	var out strings.Builder
	out.Grow(len(s))

	inString := false
	for i := 0; i < len(src); i++ {
		r := src[i]
		if inString {
			out.WriteRune(r)
			switch r {
			case '\\':
				if i+1 < len(src) {
					i++
					out.WriteRune(src[i])
				}
			case '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
			out.WriteRune(r)
		case ',':
			if next := skipSpace(src, i+1); next < len(src) && (src[next] == '}' || src[next] == ']') {
				continue
			}
			out.WriteRune(r)
			i = writeKey(&out, src, i+1) - 1
		case '{':
			out.WriteRune(r)
			i = writeKey(&out, src, i+1) - 1
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

// writeKey copies leading whitespace at src[i:] and, when a bare identifier
// follows and ends in `":`, writes it as a quoted key. It returns the index
// of the first rune it did not consume.
func writeKey(out *strings.Builder, src []rune, i int) int {
	start := skipSpace(src, i)
	out.WriteString(string(src[i:start]))

	end := start
	for end < len(src) && isKeyRune(src[end], end == start) {
		end++
	}
	if end == start || end+1 >= len(src) || src[end] != '"' || src[end+1] != ':' {
		return start
	}

	out.WriteByte('"')
	out.WriteString(string(src[start:end]))
	out.WriteByte('"')
	return end + 1
}

func isKeyRune(r rune, first bool) bool {
	if unicode.IsLetter(r) || r == '_' {
		return true
	}
	return !first && unicode.IsDigit(r)
}

func skipSpace(src []rune, i int) int {
	for i < len(src) && unicode.IsSpace(src[i]) {
		i++
	}
	return i
}
