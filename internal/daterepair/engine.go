// Package daterepair fixes OCR damage in date strings and parses them through an
// ordered chain of format strategies.
package daterepair

import (
	"regexp"
	"time"

	"banklytik/statement-normalizer/internal/dateutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/rules"
	"banklytik/statement-normalizer/internal/textutils"
)

// DefaultMaxPasses bounds the repair loop.
const DefaultMaxPasses = 5

// Failure reasons reported in ParseOutcome.Reason.
const (
	ReasonEmpty         = "empty"
	ReasonMonthYearOnly = "incomplete: month and year only"
	ReasonDayYearOnly   = "incomplete: day and year only"
	ReasonYearOnly      = "incomplete: year only"
	ReasonNoStrategy    = "no strategy matched"
	ReasonStrategyPanic = "strategy panicked"
)

type fixup struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// builtins run after the external rules, in this order.
var builtins = []fixup{
	{"split_year_month_day_time", regexp.MustCompile(`(\d{4}\s+[A-Za-z]{3}\s+)(\d{2})(\d{1,2}:\d{2})`), "${1}${2} ${3}"},
	{"split_day_time", regexp.MustCompile(`(^|[^\d:])(\d{2})(\d{2}:\d{2})`), "${1}${2} ${3}"},
	{"merge_time_seconds", regexp.MustCompile(`(\d{1,2}:\d{2}):\s+(\d{2})`), "${1} ${2}"},
	{"split_day_month", regexp.MustCompile(`(^|[^\d])(\d{1,2})([A-Za-z]{3,})`), "${1}${2} ${3}"},
	{"split_month_year", regexp.MustCompile(`([A-Za-z]{3,})(\d{4})`), "${1} ${2}"},
	{"split_year_month", regexp.MustCompile(`(\d{4})([A-Za-z]{3,})`), "${1} ${2}"},
}

// ParseOutcome is the result of the parse stage. Time is nil when nothing parsed.
type ParseOutcome struct {
	Time     *time.Time
	Strategy string
	Reason   string
}

// Result combines the repair and parse stages for one raw string.
type Result struct {
	Raw         string
	Repaired    string
	Corrections []models.Correction
	Parsed      *time.Time
	Strategy    string
	Reason      string
}

// Failure is one string that no strategy could parse.
type Failure struct {
	Original  string
	Repaired  string
	Reason    string
	Timestamp time.Time
}

// FailureRecorder receives unparseable strings for offline rule mining.
type FailureRecorder interface {
	RecordFailure(f Failure) error
}

// Engine repairs and parses date strings. It is safe for concurrent use once built.
type Engine struct {
	rules      rules.RuleSet
	strategies []Strategy
	maxPasses  int
	loc        *time.Location
	recorder   FailureRecorder
	now        func() time.Time
	logger     logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPasses bounds the number of repair passes.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// WithStrategies registers strategies ahead of the generic chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = append(append([]Strategy(nil), strategies...), e.strategies...)
	}
}

// WithLocation sets the location parsed dates are placed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithFailureRecorder sets where unparseable strings are reported.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithClock overrides the timestamp source for failure records and the
// current year assumed for yearless dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine over a rule snapshot.
func NewEngine(ruleSet rules.RuleSet, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		rules:      ruleSet,
		strategies: DefaultStrategies(),
		maxPasses:  DefaultMaxPasses,
		loc:        time.UTC,
		now:        time.Now,
		logger:     logging.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	for i, s := range e.strategies {
		if n, ok := s.(Natural); ok && n.Now == nil {
			e.strategies[i] = Natural{Now: e.now}
		}
	}
	return e
}

// Rules returns the rule snapshot the engine was built with.
func (e *Engine) Rules() rules.RuleSet {
	return e.rules
}

// StrategyNames lists the parse chain in order.
func (e *Engine) StrategyNames() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Normalize trims, strips enclosing quotes and collapses whitespace.
func Normalize(raw string) string {
	s := textutils.CollapseSpaces(raw)
	for {
		stripped := textutils.CollapseSpaces(textutils.StripQuotes(s))
		if stripped == s {
			return s
		}
		s = stripped
	}
}

// Repair applies the external rules and then the built-in fixups, pass after pass,
// until a full pass changes nothing or the pass limit is reached. Every change is
// recorded.
func (e *Engine) Repair(raw string) (string, []models.Correction) {
	s := Normalize(raw)
	if s == "" {
		return "", nil
	}

	var corrections []models.Correction
	apply := func(name string, next string) {
		if next != s {
			corrections = append(corrections, models.Correction{RuleName: name, Before: s, After: next})
			s = next
		}
	}

	for pass := 0; pass < e.maxPasses; pass++ {
		start := s
		for _, rule := range e.rules.Replacements() {
			apply(rule.Name(), textutils.CollapseSpaces(rule.Apply(s)))
		}
		for _, f := range builtins {
			apply(f.name, f.re.ReplaceAllString(s, f.replacement))
		}
		if s == start {
			break
		}
	}
	return s, corrections
}

// Parse runs the strategy chain on an already repaired string. Incomplete
// fragments ("Feb 2025", "2025-02", "15 2025", "2025") are never parsed.
func (e *Engine) Parse(repaired string) ParseOutcome {
	s := Normalize(repaired)
	if s == "" {
		return ParseOutcome{Reason: ReasonEmpty}
	}
	if _, _, ok := dateutils.ParseMonthYear(s); ok || dateutils.IsNumericMonthYear(s) {
		return ParseOutcome{Reason: ReasonMonthYearOnly}
	}
	if _, _, ok := dateutils.ParseDayYear(s); ok {
		return ParseOutcome{Reason: ReasonDayYearOnly}
	}
	if dateutils.IsBareYear(s) {
		return ParseOutcome{Reason: ReasonYearOnly}
	}

	reason := ReasonNoStrategy
	for _, strategy := range e.strategies {
		t, ok, panicked := e.tryStrategy(strategy, s)
		if panicked {
			reason = ReasonStrategyPanic
			continue
		}
		if ok {
			return ParseOutcome{Time: &t, Strategy: strategy.Name()}
		}
	}
	return ParseOutcome{Reason: reason}
}

func (e *Engine) tryStrategy(strategy Strategy, s string) (t time.Time, ok bool, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Date strategy panicked",
				logging.F(logging.FieldStrategy, strategy.Name()),
				logging.F(logging.FieldRawDate, s),
				logging.F(logging.FieldError, r))
			t, ok, panicked = time.Time{}, false, true
		}
	}()
	t, ok = strategy.Parse(s, e.loc)
	return t, ok, false
}

// Process repairs and parses raw. Non-empty strings that fail to parse are handed
// to the failure recorder; recorder errors are logged and otherwise ignored.
func (e *Engine) Process(raw string) Result {
	repaired, corrections := e.Repair(raw)
	outcome := e.Parse(repaired)
	res := Result{
		Raw:         raw,
		Repaired:    repaired,
		Corrections: corrections,
		Parsed:      outcome.Time,
		Strategy:    outcome.Strategy,
		Reason:      outcome.Reason,
	}

	if res.Parsed == nil && repaired != "" && e.recorder != nil {
		err := e.recorder.RecordFailure(Failure{
			Original:  raw,
			Repaired:  repaired,
			Reason:    outcome.Reason,
			Timestamp: e.now().UTC(),
		})
		if err != nil {
			e.logger.WithError(err).Warn("Failed to record unparseable date",
				logging.F(logging.FieldRawDate, raw))
		}
	}
	return res
}
