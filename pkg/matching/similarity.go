package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Similarity returns the normalized Levenshtein similarity of a and b:
// (len(longer) - distance) / len(longer), with lengths counted in runes.
// Two empty strings are identical (1.0); an empty string against a non-empty one is 0.0.
// If either input is not valid UTF-8 both are compared byte by byte.
func Similarity(a, b string) float64 {
	if utf8.ValidString(a) && utf8.ValidString(b) {
		a = norm.NFC.String(a)
		b = norm.NFC.String(b)
	} else {
		a, b = byteRunes(a), byteRunes(b)
	}

	longer := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longer {
		longer = n
	}
	if longer == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return float64(longer-distance) / float64(longer)
}

// byteRunes maps every byte of s to its own rune
func byteRunes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		sb.WriteRune(rune(s[i]))
	}
	return sb.String()
}

// Fold trims s and applies Unicode case folding, so "STRASSE" and "straße" compare equal.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// EqualFold reports whether a and b are equal after Fold. Blank values never match.
func EqualFold(a, b string) bool {
	fa, fb := Fold(a), Fold(b)
	return fa != "" && fa == fb
}
