// Package address resolves free-text street addresses to cadastral
// references through a precomputed index of normalized keys.
package address

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// streetPrefixes are the street-type prefixes dropped from the start of a
// normalized string. Only the first match is removed.
var streetPrefixes = []string{
	"CALLE ", "CL ", "C/ ",
	"AVENIDA ", "AV ", "AV.",
	"PASEO ", "PS ",
	"PLAZA ", "PZA ",
}

// Normalize returns the comparison key for a street name or house number.
// Accents are removed, the text is uppercased, whitespace is trimmed and
// collapsed, and at most one street-type prefix is stripped. The same
// function builds the index and serves lookups.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = foldAccents(s)
	s = strings.ToUpper(s)
	s = strings.Join(strings.Fields(s), " ")

	for _, p := range streetPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return s
}

// foldAccents decomposes s and drops the combining marks.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
