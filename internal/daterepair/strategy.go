package daterepair

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"banklytik/statement-normalizer/internal/dateutils"

	"github.com/araddon/dateparse"
	"github.com/goodsign/monday"
)

// Strategy parses one family of date formats.
type Strategy interface {
	Name() string
	Parse(s string, loc *time.Location) (time.Time, bool)
}

// DefaultStrategies returns the generic chain ordered by specificity.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NumericDMY{},
		MonthName{},
		Natural{},
		NewLayoutStrategy("fixed_formats", dateutils.CommonFormats...),
		Locale{},
	}
}

// build returns the date when every component is in range.
func build(year int, month time.Month, day, hour, minute, second int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > dateutils.DaysInMonth(year, month) {
		return time.Time{}, false
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}
	return time.Date(year, month, day, hour, minute, second, 0, loc), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NumericDMY parses day-first numeric dates such as 24/02/25 10:00:48.
// Two-digit years are read as 20YY.
type NumericDMY struct{}

var numericDMY = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})(?:[\sT,]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

func (NumericDMY) Name() string { return "numeric_dmy" }

func (NumericDMY) Parse(s string, loc *time.Location) (time.Time, bool) {
	m := numericDMY.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year := atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	return build(year, time.Month(atoi(m[2])), atoi(m[1]), atoi(m[4]), atoi(m[5]), atoi(m[6]), loc)
}

// MonthName parses "D Mon YYYY [H:M[:S]]" and "YYYY Mon D [H:M[:S]]", with short or
// long English month names. Seconds may be separated by a space, as OCR often leaves them.
type MonthName struct{}

const clock = `(?:[\s,]+(\d{1,2}):(\d{2})(?:[:\s](\d{2}))?)?`

var (
	dayFirst  = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?[\s\-]+([A-Za-z]{3,9})\.?,?[\s\-]+(\d{4})` + clock + `$`)
	yearFirst = regexp.MustCompile(`^(\d{4})[\s\-]+([A-Za-z]{3,9})\.?[\s\-]+(\d{1,2})` + clock + `$`)
)

func (MonthName) Name() string { return "month_name" }

func (MonthName) Parse(s string, loc *time.Location) (time.Time, bool) {
	if m := dayFirst.FindStringSubmatch(s); m != nil {
		month, ok := dateutils.MonthFromName(m[2])
		if !ok {
			return time.Time{}, false
		}
		return build(atoi(m[3]), month, atoi(m[1]), atoi(m[4]), atoi(m[5]), atoi(m[6]), loc)
	}
	if m := yearFirst.FindStringSubmatch(s); m != nil {
		month, ok := dateutils.MonthFromName(m[2])
		if !ok {
			return time.Time{}, false
		}
		return build(atoi(m[1]), month, atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]), loc)
	}
	return time.Time{}, false
}

// Natural delegates to a general-purpose parser with day-before-month preference.
// Incomplete fragments and bare numbers are refused so no day or month is invented.
// Dates without a year ("15 Feb", "Feb 15") are placed in the current year.
type Natural struct {
	// Now supplies the current year; nil means time.Now.
	Now func() time.Time
}

var (
	allDigits     = regexp.MustCompile(`^\d+$`)
	fourDigitYear = regexp.MustCompile(`(?:^|\D)\d{4}(?:\D|$)`)
	yearlessDM    = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?[\s\-]+([A-Za-z]{3,9})\.?$`)
	yearlessMD    = regexp.MustCompile(`^([A-Za-z]{3,9})\.?[\s\-]+(\d{1,2})(?:st|nd|rd|th)?$`)
)

func (Natural) Name() string { return "natural" }

func (n Natural) Parse(s string, loc *time.Location) (time.Time, bool) {
	if s == "" || allDigits.MatchString(s) || dateutils.IsIncomplete(s) {
		return time.Time{}, false
	}
	if !fourDigitYear.MatchString(s) {
		if t, ok := n.parseYearless(s, loc); ok {
			return t, true
		}
	}
	parsed, err := dateparse.ParseIn(s, loc, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, false
	}
	if parsed.Year() == 0 {
		h, m, sec := parsed.Clock()
		return build(n.currentYear(loc), parsed.Month(), parsed.Day(), h, m, sec, loc)
	}
	return parsed, true
}

func (n Natural) parseYearless(s string, loc *time.Location) (time.Time, bool) {
	var day, name string
	if m := yearlessDM.FindStringSubmatch(s); m != nil {
		day, name = m[1], m[2]
	} else if m := yearlessMD.FindStringSubmatch(s); m != nil {
		day, name = m[2], m[1]
	} else {
		return time.Time{}, false
	}
	month, ok := dateutils.MonthFromName(name)
	if !ok {
		return time.Time{}, false
	}
	return build(n.currentYear(loc), month, atoi(day), 0, 0, 0, loc)
}

func (n Natural) currentYear(loc *time.Location) int {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return now().In(loc).Year()
}

// LayoutStrategy tries a fixed list of Go layouts. Institution parsers register
// their own instances ahead of the generic chain.
type LayoutStrategy struct {
	name    string
	layouts []string
}

// NewLayoutStrategy creates a named layout strategy.
func NewLayoutStrategy(name string, layouts ...string) LayoutStrategy {
	return LayoutStrategy{name: name, layouts: layouts}
}

func (l LayoutStrategy) Name() string { return l.name }

func (l LayoutStrategy) Parse(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range l.layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Locale is the last resort: day-first layouts read with month names of several locales.
type Locale struct{}

var (
	localeLayouts = []string{
		"2 January 2006",
		"2 Jan 2006",
		"2 January 2006 15:04",
		"Monday 2 January 2006",
		"Monday, 2 January 2006",
		"2. January 2006",
		"2 de January de 2006",
	}
	locales = []monday.Locale{
		monday.LocaleEnGB,
		monday.LocaleFrFR,
		monday.LocaleDeDE,
		monday.LocaleEsES,
		monday.LocalePtPT,
		monday.LocaleItIT,
		monday.LocaleNlNL,
	}
)

func (Locale) Name() string { return "locale" }

func (Locale) Parse(s string, loc *time.Location) (time.Time, bool) {
	if !strings.ContainsFunc(s, isLetter) {
		return time.Time{}, false
	}
	for _, locale := range locales {
		for _, layout := range localeLayouts {
			if t, err := monday.ParseInLocation(layout, s, loc, locale); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}
