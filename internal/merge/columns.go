package merge

import (
	"regexp"
	"strings"

	"banklytik/statement-normalizer/internal/currencyutils"
	"banklytik/statement-normalizer/internal/textutils"
)

// columnType is the coarse content type inferred from a column sample.
type columnType string

const (
	typeDate    columnType = "date"
	typeAmount  columnType = "amount"
	typeText    columnType = "text"
	typeUnknown columnType = "unknown"
)

const (
	sampleSize     = 20
	typeShare      = 0.3
	textMinAverage = 10
)

var datePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
	regexp.MustCompile(`^\d{1,2}\s+[A-Za-z]{3}\s+\d{4}`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`^\d{4}\s+[A-Za-z]{3}\s+\d{1,2}`),
}

// aliasGroups are names that denote the same column across layouts.
var aliasGroups = [][]string{
	{"date", "time", "datetime", "transaction date", "trans date", "trans time", "value_date"},
	{"description", "desc", "particulars", "details", "narration", "remarks"},
	{"debit", "withdrawal", "dr", "debit amount", "money out"},
	{"credit", "deposit", "cr", "credit amount", "money in"},
	{"amount", "transaction amount", "value", "debit_credit"},
	{"balance", "running balance", "available balance"},
	{"transaction_reference", "reference", "ref", "transaction ref", "trn ref"},
}

// HeaderKeywords are the terms counted when spotting a header row repeated
// inside the data.
var HeaderKeywords = []string{
	"date", "time", "datetime", "trans",
	"description", "particulars", "details", "narration",
	"debit", "credit", "amount", "money",
	"balance", "reference", "channel",
	"category", "to / from", "from/to",
}

func isDateLike(v string) bool {
	for _, re := range datePrefixes {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// inferType classifies a column from its first non-null values. Date and
// amount win when more than 30% of the sample matches.
func inferType(values []string) columnType {
	if len(values) > sampleSize {
		values = values[:sampleSize]
	}
	if len(values) == 0 {
		return typeUnknown
	}
	threshold := float64(len(values)) * typeShare

	dates, amounts, length := 0, 0, 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		length += len([]rune(v))
		if isDateLike(v) {
			dates++
		}
		if currencyutils.LooksLikeAmount(v) {
			amounts++
		}
	}
	switch {
	case float64(dates) > threshold:
		return typeDate
	case float64(amounts) > threshold:
		return typeAmount
	case length > textMinAverage*len(values):
		return typeText
	}
	return typeUnknown
}

func aliasGroup(name string) int {
	for i, group := range aliasGroups {
		for _, alias := range group {
			if name == alias {
				return i
			}
		}
	}
	return -1
}

// nameSimilarity compares two column names: equal 1.0, containment 0.8,
// same alias group 0.7, a shared word 0.6, a close edit distance 0.5.
func nameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	if g := aliasGroup(a); g >= 0 && g == aliasGroup(b) {
		return 0.7
	}
	words := make(map[string]bool)
	for _, w := range textutils.Tokens(a) {
		words[w] = true
	}
	for _, w := range textutils.Tokens(b) {
		if words[w] {
			return 0.6
		}
	}
	if textutils.Similarity(a, b) >= 0.75 {
		return 0.5
	}
	return 0
}

// contentSimilarity compares inferred content types.
func contentSimilarity(a, b columnType) float64 {
	switch {
	case a != b:
		return 0
	case a == typeUnknown:
		return 0.3
	}
	return 0.7
}
