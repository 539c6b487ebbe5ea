// Package learning records date repair failures and review outcomes, and
// turns the accumulated history into advice for the date validator.
package learning

import (
	"regexp"
	"sort"
	"strings"

	"banklytik/statement-normalizer/internal/textutils"
)

var signatureToken = regexp.MustCompile(`[A-Za-z]{3,}|\d+`)

// Signature groups structurally similar date strings: letter runs of three or
// more become MON, digit runs become NUM, and the sorted issue tags follow a
// colon. "24Feb 2025" with no issues is "NUMMON NUM:".
func Signature(date string, issues []string) string {
	shape := signatureToken.ReplaceAllStringFunc(date, func(tok string) string {
		if tok[0] >= '0' && tok[0] <= '9' {
			return "NUM"
		}
		return "MON"
	})
	sorted := append([]string(nil), issues...)
	sort.Strings(sorted)
	return textutils.CollapseSpaces(shape) + ":" + strings.Join(sorted, "|")
}
