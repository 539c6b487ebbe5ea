// Package dateutils provides common date and time operations used throughout the application.
package dateutils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Common date format constants used throughout the application
const (
	DateLayoutISO       = "2006-01-02"
	DateLayoutEuropean  = "02.01.2006"
	DateLayoutUS        = "01/02/2006"
	DateLayoutFull      = "2006-01-02 15:04:05"
	DateLayoutWithMonth = "2-Jan-2006"
	DateLayoutStatement = "02 Jan 2006"
)

// CommonFormats is a list of standard formats to try when parsing dates
var CommonFormats = []string{
	DateLayoutISO,
	DateLayoutFull,
	DateLayoutEuropean,
	DateLayoutWithMonth,
	DateLayoutStatement,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-06",
}

var (
	whitespace  = regexp.MustCompile(`\s+`)
	monthYear   = regexp.MustCompile(`^([A-Za-z]{3,})\.?,?\s+(\d{4})$`)
	dayYear     = regexp.MustCompile(`^(\d{1,2})\s+(\d{4})$`)
	bareYear    = regexp.MustCompile(`^\d{4}$`)
	numericYM   = regexp.MustCompile(`^(?:\d{4}[-/.]\d{1,2}|\d{1,2}[-/.]\d{4})$`)
	monthByName = map[string]time.Month{}
)

func init() {
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		monthByName[full] = m
		monthByName[full[:3]] = m
	}
	monthByName["sept"] = time.September
}

// ToISODate formats a time.Time value as an ISO date (YYYY-MM-DD)
func ToISODate(date time.Time) string {
	return date.Format(DateLayoutISO)
}

// FormatOptional formats a nullable date with the given layout, or returns "".
func FormatOptional(date *time.Time, layout string) string {
	if date == nil {
		return ""
	}
	if layout == "" {
		layout = DateLayoutISO
	}
	return date.Format(layout)
}

// CleanDateString trims, replaces non-breaking spaces and collapses whitespace runs.
func CleanDateString(dateStr string) string {
	dateStr = strings.ReplaceAll(dateStr, "\u00a0", " ")
	dateStr = strings.TrimSpace(dateStr)
	return whitespace.ReplaceAllString(dateStr, " ")
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay limits day to the valid range of the given month.
func ClampDay(year int, month time.Month, day int) int {
	if day < 1 {
		return 1
	}
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	return day
}

// MonthFromName resolves an English month name or three-letter abbreviation.
func MonthFromName(name string) (time.Month, bool) {
	m, ok := monthByName[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))]
	return m, ok
}

// ParseMonthYear recognizes a "Feb 2025" style fragment that carries no day.
func ParseMonthYear(s string) (time.Month, int, bool) {
	match := monthYear.FindStringSubmatch(CleanDateString(s))
	if match == nil {
		return 0, 0, false
	}
	m, ok := MonthFromName(match[1])
	if !ok {
		return 0, 0, false
	}
	year, _ := strconv.Atoi(match[2])
	return m, year, true
}

// ParseDayYear recognizes a "15 2025" style fragment that lost its month.
func ParseDayYear(s string) (int, int, bool) {
	match := dayYear.FindStringSubmatch(CleanDateString(s))
	if match == nil {
		return 0, 0, false
	}
	day, _ := strconv.Atoi(match[1])
	year, _ := strconv.Atoi(match[2])
	return day, year, true
}

// IsBareYear reports whether s is nothing but a four-digit year.
func IsBareYear(s string) bool {
	return bareYear.MatchString(CleanDateString(s))
}

// IsNumericMonthYear reports whether s is a numeric year and month with no day,
// such as 2025-02 or 02/2025.
func IsNumericMonthYear(s string) bool {
	return numericYM.MatchString(CleanDateString(s))
}

// IsIncomplete reports whether s lacks a day or a month, so no full date can be read from it.
func IsIncomplete(s string) bool {
	if _, _, ok := ParseMonthYear(s); ok {
		return true
	}
	if _, _, ok := ParseDayYear(s); ok {
		return true
	}
	return IsBareYear(s) || IsNumericMonthYear(s)
}

// SameDay reports whether two dates fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
