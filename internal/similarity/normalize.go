// Package similarity provides the string normalization, fuzzy matching, and
// confidence scoring shared by the search chain and the data merger.
package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, NFKC-folds, and strips all whitespace. Two strings
// that normalize equal are treated as the same value during matching.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DedupKey builds the composite identity key used to recognize "the same"
// facility across datasets.
func DedupKey(name, address string) string {
	return Normalize(name) + "-" + Normalize(address)
}

// DigitsOnly strips everything but ASCII digits. Used for phone comparison.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
