// Package textutils provides text normalization and extraction utilities.
package textutils

import (
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	headerNoise = regexp.MustCompile(`[^a-z0-9/ ]+`)
)

// CollapseSpaces trims s and collapses every whitespace run (including NBSP) to one space.
func CollapseSpaces(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeHeader lowercases a header cell and strips punctuation, keeping "/".
// "Trans. Time" becomes "trans time".
func NormalizeHeader(s string) string {
	s = strings.ToLower(CollapseSpaces(s))
	s = headerNoise.ReplaceAllString(s, " ")
	return CollapseSpaces(s)
}

// Tokens splits a normalized header into words, treating "/" as a separator.
func Tokens(s string) []string {
	return strings.FieldsFunc(NormalizeHeader(s), func(r rune) bool {
		return r == ' ' || r == '/'
	})
}

// Similarity returns the Levenshtein ratio of a and b in [0, 1], compared case-insensitively.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// ContainsAny reports whether the lowercase text contains any of the terms.
func ContainsAny(text string, terms ...string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// StripQuotes removes one pair of matching enclosing quotes.
func StripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
