// Package inference completes partial dates from the dates of neighbouring
// transactions in the same table and page.
package inference

import (
	"sort"
	"time"

	"banklytik/statement-normalizer/internal/dateutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

// DefaultDay is used for a missing day when no context helps.
const DefaultDay = 15

// Inference methods recorded on DateInference.Method.
const (
	MethodMedianSameMonth = "median_same_month"
	MethodRecentSameYear  = "recent_same_year"
	MethodDefaultDay      = "default_day"
	MethodRecentMonth     = "recent_month"
	MethodCurrentMonth    = "current_month"
)

// ContextSet holds the successfully parsed dates of one table/page.
type ContextSet struct {
	dates []time.Time
}

// NewContextSet builds a context from dates.
func NewContextSet(dates ...time.Time) ContextSet {
	return ContextSet{dates: append([]time.Time(nil), dates...)}
}

// Len returns the number of context dates.
func (c ContextSet) Len() int {
	return len(c.dates)
}

func (c ContextSet) sameMonth(year int, month time.Month) []int {
	var days []int
	for _, d := range c.dates {
		if d.Year() == year && d.Month() == month {
			days = append(days, d.Day())
		}
	}
	return days
}

// latestInYear returns the most recent context date in the given year.
func (c ContextSet) latestInYear(year int) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, d := range c.dates {
		if d.Year() != year {
			continue
		}
		if !found || d.After(latest) {
			latest, found = d, true
		}
	}
	return latest, found
}

// Key identifies the table and page a context belongs to.
type Key struct {
	TableID int
	Page    int
}

// Resolver infers missing day or month components.
type Resolver struct {
	defaultDay int
	now        func() time.Time
	logger     logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefaultDay sets the fallback day for a month-and-year fragment.
func WithDefaultDay(day int) Option {
	return func(r *Resolver) {
		if day >= 1 && day <= 31 {
			r.defaultDay = day
		}
	}
}

// WithClock overrides the source of the current month.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(logger logging.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		defaultDay: DefaultDay,
		now:        time.Now,
		logger:     logging.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve infers a full date for a flagged month+year or day+year fragment.
// The year always comes from the fragment itself; the day is always clamped to
// the target month. It returns false when the row is not eligible.
func (r *Resolver) Resolve(raw string, result models.DateValidationResult, ctx ContextSet) (models.DateInference, bool) {
	if !result.Category.NeedsAttention() {
		return models.DateInference{}, false
	}
	text := result.Repaired
	if text == "" {
		text = raw
	}

	if month, year, ok := dateutils.ParseMonthYear(text); ok {
		return r.missingDay(year, month, ctx), true
	}
	if day, year, ok := dateutils.ParseDayYear(text); ok {
		if day < 1 || day > 31 {
			return models.DateInference{}, false
		}
		return r.missingMonth(year, day, ctx), true
	}
	return models.DateInference{}, false
}

func (r *Resolver) missingDay(year int, month time.Month, ctx ContextSet) models.DateInference {
	if days := ctx.sameMonth(year, month); len(days) > 0 {
		sort.Ints(days)
		median := days[(len(days)-1)/2]
		return inferred(year, month, median, models.ConfidenceHigh, MethodMedianSameMonth)
	}
	if latest, ok := ctx.latestInYear(year); ok {
		return inferred(year, month, latest.Day(), models.ConfidenceMedium, MethodRecentSameYear)
	}
	return inferred(year, month, r.defaultDay, models.ConfidenceLow, MethodDefaultDay)
}

func (r *Resolver) missingMonth(year, day int, ctx ContextSet) models.DateInference {
	if latest, ok := ctx.latestInYear(year); ok {
		return inferred(year, latest.Month(), day, models.ConfidenceMedium, MethodRecentMonth)
	}
	return inferred(year, r.now().Month(), day, models.ConfidenceLow, MethodCurrentMonth)
}

func inferred(year int, month time.Month, day int, confidence models.Confidence, method string) models.DateInference {
	d := time.Date(year, month, dateutils.ClampDay(year, month, day), 0, 0, 0, 0, time.UTC)
	return models.DateInference{
		Date:       d,
		Text:       dateutils.ToISODate(d),
		Confidence: confidence,
		Method:     method,
	}
}

// BuildContexts groups the parsed dates of rows by table and page.
func BuildContexts(rows []models.TransactionRow) map[Key]ContextSet {
	grouped := make(map[Key][]time.Time)
	for _, row := range rows {
		if row.Date == nil || row.Inference != nil {
			continue
		}
		k := Key{TableID: row.TableID, Page: row.Page}
		grouped[k] = append(grouped[k], *row.Date)
	}
	out := make(map[Key]ContextSet, len(grouped))
	for k, dates := range grouped {
		out[k] = ContextSet{dates: dates}
	}
	return out
}

// ApplyToRows infers dates for eligible rows without a parsed date. Contexts are
// built from the input before any inference, so inferred dates never feed
// further inference. It returns new rows and the number of inferred dates.
func (r *Resolver) ApplyToRows(rows []models.TransactionRow) ([]models.TransactionRow, int) {
	contexts := BuildContexts(rows)
	out := make([]models.TransactionRow, len(rows))
	count := 0
	for i, row := range rows {
		out[i] = row.Clone()
		if row.Date != nil {
			continue
		}
		ctx := contexts[Key{TableID: row.TableID, Page: row.Page}]
		inf, ok := r.Resolve(row.RawDate, row.DateValidation, ctx)
		if !ok {
			continue
		}
		d := inf.Date
		out[i].Date = &d
		out[i].Inference = &inf
		out[i].RowIssues.Add(models.RowIssueDateInferred)
		count++
		r.logger.Debug("Inferred missing date component",
			logging.F(logging.FieldRawDate, row.RawDate),
			logging.F(logging.FieldTableID, row.TableID),
			logging.F(logging.FieldPage, row.Page),
			logging.F(logging.FieldStrategy, inf.Method))
	}
	return out, count
}
