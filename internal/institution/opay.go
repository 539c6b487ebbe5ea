package institution

import (
	"regexp"
	"strings"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

var (
	opayDateTime = regexp.MustCompile(`\d{4}\s+[A-Za-z]{3}\s+\d{1,2}\s+\d{1,2}:\d{2}:\d{2}`)
	opayRef      = regexp.MustCompile(`\b[A-Z]{2}\d{8,12}\b`)
)

// OPayParser reads OPay statements, one transaction per line starting with a
// "2025 Feb 24 07:36:01" timestamp. The timestamp is kept as raw text.
type OPayParser struct {
	profile Profile
	logger  logging.Logger
}

// NewOPayParser creates a parser for the OPAY profile.
func NewOPayParser(profile Profile, logger logging.Logger) *OPayParser {
	return &OPayParser{profile: profile, logger: logging.OrDefault(logger)}
}

// Code implements Parser.
func (p *OPayParser) Code() string {
	return "OPAY"
}

// Parse implements Parser.
func (p *OPayParser) Parse(lines []string) models.Frame {
	frame := models.Frame{Columns: append([]string(nil), Columns...)}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		loc := opayDateTime.FindStringIndex(line)
		if loc == nil || !IsCandidate(line, p.profile.Boilerplate) {
			continue
		}
		e := entry{date: line[loc[0]:loc[1]], text: line[:loc[0]] + " " + line[loc[1]:]}

		ref := opayRef.FindString(line)
		if ref == "" {
			ref = phoneRef.FindString(e.text)
		}
		row, ok := toRow(e, p.profile.CreditKeywords, ref)
		if !ok || row.Cells[1].Value == "" {
			continue
		}
		frame.Rows = append(frame.Rows, row)
	}
	p.logger.Debug("Parsed OPay statement lines", logging.F(logging.FieldCount, frame.Len()))
	return frame
}
