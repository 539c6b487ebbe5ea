package institution

import (
	"regexp"
	"strings"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

var kudaStart = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{2,4})\s+(\d{1,2}:\d{2}:\d{2})`)

// KudaParser reads Kuda statements. A transaction starts on a line with a
// numeric date and a time; following candidate lines continue it.
type KudaParser struct {
	profile Profile
	logger  logging.Logger
}

// NewKudaParser creates a parser for the KUDA profile.
func NewKudaParser(profile Profile, logger logging.Logger) *KudaParser {
	return &KudaParser{profile: profile, logger: logging.OrDefault(logger)}
}

// Code implements Parser.
func (p *KudaParser) Code() string {
	return "KUDA"
}

// Parse implements Parser.
func (p *KudaParser) Parse(lines []string) models.Frame {
	frame := models.Frame{Columns: append([]string(nil), Columns...)}
	var current *entry
	skipped := 0

	flush := func() {
		if current == nil {
			return
		}
		if !p.isTransaction(current.text) {
			skipped++
			current = nil
			return
		}
		ref := phoneRef.FindString(current.text)
		if row, ok := toRow(*current, p.profile.CreditKeywords, ref); ok {
			frame.Rows = append(frame.Rows, row)
		} else {
			skipped++
		}
		current = nil
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !IsCandidate(line, p.profile.Boilerplate) {
			continue
		}
		if m := kudaStart.FindStringSubmatch(line); m != nil {
			flush()
			current = &entry{date: m[1] + " " + m[2], text: line}
			continue
		}
		if current != nil {
			current.text += " " + line
		}
	}
	flush()

	p.logger.Debug("Parsed Kuda statement lines",
		logging.F(logging.FieldCount, frame.Len()),
		logging.F("skipped", skipped))
	return frame
}

func (p *KudaParser) isTransaction(text string) bool {
	if len(p.profile.Indicators) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, ind := range p.profile.Indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
