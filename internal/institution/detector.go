package institution

import (
	"regexp"
	"strings"

	"banklytik/statement-normalizer/internal/logging"
)

// DefaultSniffLines is how many text lines Detect looks at.
const DefaultSniffLines = 600

type matcher struct {
	code     string
	patterns []*regexp.Regexp
}

// Detector identifies an institution from statement text by keyword.
type Detector struct {
	matchers   []matcher
	sniffLines int
	logger     logging.Logger
}

// NewDetector builds a detector over profiles. Profiles are tried in order.
func NewDetector(profiles []Profile, sniffLines int, logger logging.Logger) *Detector {
	if sniffLines <= 0 {
		sniffLines = DefaultSniffLines
	}
	d := &Detector{sniffLines: sniffLines, logger: logging.OrDefault(logger)}
	for _, p := range profiles {
		m := matcher{code: p.Code}
		for _, kw := range p.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			m.patterns = append(m.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		d.matchers = append(d.matchers, m)
	}
	return d
}

// Detect returns the code of the first profile with a keyword in the first
// sniffLines lines, or CodeUnknown.
func (d *Detector) Detect(lines []string) string {
	if len(lines) > d.sniffLines {
		lines = lines[:d.sniffLines]
	}
	text := strings.Join(lines, " ")
	if strings.TrimSpace(text) == "" {
		return CodeUnknown
	}
	for _, m := range d.matchers {
		for _, re := range m.patterns {
			if re.MatchString(text) {
				d.logger.Debug("Detected institution",
					logging.F(logging.FieldInstitution, m.code),
					logging.F("keyword", re.String()))
				return m.code
			}
		}
	}
	return CodeUnknown
}
