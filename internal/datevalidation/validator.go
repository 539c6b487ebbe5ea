// Package datevalidation assigns risk categories to repaired and parsed dates.
package datevalidation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"banklytik/statement-normalizer/internal/dateutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
	"banklytik/statement-normalizer/internal/rules"
)

const (
	DefaultMaxFutureDays = 365
	DefaultMaxPastYears  = 50
)

// Input is one row's date after repair and parsing.
type Input struct {
	Raw         string
	Repaired    string
	Parsed      *time.Time
	Corrections []models.Correction
	Strategy    string
}

// Advice is a recommendation learned from past review outcomes.
type Advice struct {
	Category   models.Category
	Confidence models.Confidence
}

// Advisor looks up learned advice for a repaired date and the issues found on it.
type Advisor interface {
	Advise(repaired string, issues []models.IssueTag) (Advice, bool)
}

type signature struct {
	re       *regexp.Regexp
	category models.Category
}

var garbageSignatures = []signature{
	{regexp.MustCompile(`^\d{4}\s+[A-Za-z]{3}\s+\d{1,2}:\d{2}\s+\d{1,2}$`), models.CategoryFlagCritical},
	{regexp.MustCompile(`^\d{1,2}:\d{2}\s+\d{1,2}$`), models.CategoryFlagCritical},
	{regexp.MustCompile(`[A-Za-z]{3}\s+\d{2}:\d{2}`), models.CategoryFlagCritical},
	{regexp.MustCompile(`^[A-Za-z]{3,}\s+\d{4}$`), models.CategoryFlagReview},
	{regexp.MustCompile(`^\d{1,2}\s+\d{4}$`), models.CategoryFlagReview},
}

var (
	nullStrings = map[string]bool{"": true, "nan": true, "nat": true, "none": true, "null": true}
	clockTime   = regexp.MustCompile(`(\d{1,2}):(\d{2})(?::(\d{2})|\s(\d{2})\b)?`)
	dayMonth    = regexp.MustCompile(`(?:^|\s)(\d{2,3})\s+([A-Za-z]{3,})`)
	yearMonDay  = regexp.MustCompile(`\d{4}\s+([A-Za-z]{3,})\s+(\d{2,3})(?:\s|$)`)
	numericDay  = regexp.MustCompile(`^(\d{2})[/.\-]\d{1,2}[/.\-]\d{2,4}`)
)

// Validator classifies date outcomes. It never panics.
type Validator struct {
	maxFutureDays int
	maxPastYears  int
	now           func() time.Time
	detectors     []rules.Rule
	advisor       Advisor
	logger        logging.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithThresholds sets the plausibility window around now.
func WithThresholds(maxFutureDays, maxPastYears int) Option {
	return func(v *Validator) {
		if maxFutureDays >= 0 {
			v.maxFutureDays = maxFutureDays
		}
		if maxPastYears > 0 {
			v.maxPastYears = maxPastYears
		}
	}
}

// WithClock overrides the reference time.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithRuleSet adds the detection-only rules of the set as extra garbage signatures.
func WithRuleSet(set rules.RuleSet) Option {
	return func(v *Validator) {
		v.detectors = set.Detectors()
	}
}

// WithAdvisor enables learned advice.
func WithAdvisor(a Advisor) Option {
	return func(v *Validator) {
		v.advisor = a
	}
}

// NewValidator creates a Validator with the default thresholds.
func NewValidator(logger logging.Logger, opts ...Option) *Validator {
	v := &Validator{
		maxFutureDays: DefaultMaxFutureDays,
		maxPastYears:  DefaultMaxPastYears,
		now:           time.Now,
		logger:        logging.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsNull reports whether raw carries no date at all.
func IsNull(raw string) bool {
	return nullStrings[strings.ToLower(strings.TrimSpace(raw))]
}

// Validate runs every check and returns a new result. Checks do not short-circuit;
// the category is the highest one any check produced.
func (v *Validator) Validate(in Input) (result models.DateValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.WithError(parsererror.Recover("date validation", r)).
				Error("Date validation failed", logging.F(logging.FieldRawDate, in.Raw))
			result = models.DateValidationResult{
				Raw:                in.Raw,
				Repaired:           in.Repaired,
				Category:           models.CategoryFlagCritical,
				Confidence:         models.ConfidenceLow,
				Issues:             []models.IssueTag{models.IssueUnparseable},
				CorrectionsApplied: append([]models.Correction(nil), in.Corrections...),
				Strategy:           in.Strategy,
			}
		}
	}()

	// Shape checks look at the repaired text, so OCR damage the rules already fixed is not flagged.
	text := strings.TrimSpace(in.Repaired)
	if text == "" {
		text = strings.TrimSpace(in.Raw)
	}

	category := models.CategoryNone
	var issues []models.IssueTag
	flag := func(tag models.IssueTag, c models.Category) {
		for _, existing := range issues {
			if existing == tag {
				category = category.Max(c)
				return
			}
		}
		issues = append(issues, tag)
		category = category.Max(c)
	}

	null := IsNull(in.Raw)
	if null {
		flag(models.IssueNullDate, models.CategoryFlagCritical)
	}

	if !null {
		for _, sig := range garbageSignatures {
			if sig.re.MatchString(text) {
				flag(models.IssueOCRErrorPattern, sig.category)
			}
		}
		for _, d := range v.detectors {
			if d.Matches(text) {
				c := models.CategoryFlagReview
				if d.Category == models.RuleCategoryGarbage {
					c = models.CategoryFlagCritical
				}
				flag(models.IssueOCRErrorPattern, c)
			}
		}
	}

	if hasImpossibleTime(text) {
		flag(models.IssueImpossibleTime, models.CategoryFlagCritical)
	}

	if hasImpossibleDay(text) {
		flag(models.IssueImpossibleDay, models.CategoryFlagCritical)
	}

	if in.Parsed == nil && !null {
		flag(models.IssueUnparseable, models.CategoryFlagReview)
	}

	if in.Parsed != nil {
		now := v.now()
		if in.Parsed.Before(now.AddDate(-v.maxPastYears, 0, 0)) {
			flag(models.IssueDateTooFarPast, models.CategoryFlagReview)
		}
		if in.Parsed.After(now.AddDate(0, 0, v.maxFutureDays)) {
			flag(models.IssueDateTooFarFuture, models.CategoryFlagReview)
		}
	}

	confidence := confidenceFor(category)

	if v.advisor != nil && in.Parsed != nil && category == models.CategoryFlagReview {
		if advice, ok := v.advisor.Advise(text, issues); ok {
			switch advice.Category {
			case models.CategoryAutoCorrect:
				category = models.CategoryAutoCorrect
				confidence = advice.Confidence
			case models.CategoryFlagCritical:
				flag(models.IssueLearnedEscalation, models.CategoryFlagCritical)
				confidence = models.ConfidenceLow
			}
		}
	}

	var parsed *time.Time
	if in.Parsed != nil {
		p := *in.Parsed
		parsed = &p
	}
	return models.DateValidationResult{
		Raw:                in.Raw,
		Repaired:           in.Repaired,
		Parsed:             parsed,
		Category:           category,
		Confidence:         confidence,
		Issues:             issues,
		CorrectionsApplied: append([]models.Correction(nil), in.Corrections...),
		Strategy:           in.Strategy,
	}
}

func confidenceFor(c models.Category) models.Confidence {
	switch c {
	case models.CategoryNone:
		return models.ConfidenceHigh
	case models.CategoryFlagCritical:
		return models.ConfidenceLow
	}
	return models.ConfidenceMedium
}

func hasImpossibleTime(s string) bool {
	for _, m := range clockTime.FindAllStringSubmatch(s, -1) {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		second := 0
		if m[3] != "" {
			second, _ = strconv.Atoi(m[3])
		} else if m[4] != "" {
			second, _ = strconv.Atoi(m[4])
		}
		if hour > 23 || minute > 59 || second > 59 {
			return true
		}
	}
	return false
}

func hasImpossibleDay(s string) bool {
	for _, m := range dayMonth.FindAllStringSubmatch(s, -1) {
		if _, ok := dateutils.MonthFromName(m[2]); ok && over31(m[1]) {
			return true
		}
	}
	for _, m := range yearMonDay.FindAllStringSubmatch(s, -1) {
		if _, ok := dateutils.MonthFromName(m[1]); ok && over31(m[2]) {
			return true
		}
	}
	if m := numericDay.FindStringSubmatch(s); m != nil && over31(m[1]) {
		return true
	}
	return false
}

func over31(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 31
}
