// Package header decides whether a table starts with a header row and maps raw
// header text onto canonical transaction fields.
package header

import (
	"fmt"
	"strings"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/textutils"
)

const (
	DefaultFuzzyThreshold = 0.5
	DefaultMinMatches     = 3
)

// Resolution is the outcome of header detection for one table.
type Resolution struct {
	Map          models.CanonicalColumnMap
	HasHeaderRow bool
}

// Resolver maps table headers to canonical fields using keyword and fuzzy matching.
type Resolver struct {
	logger         logging.Logger
	fuzzyThreshold float64
	minMatches     int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFuzzyThreshold sets the minimum similarity ratio for fuzzy matches.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 && threshold <= 1 {
			r.fuzzyThreshold = threshold
		}
	}
}

// WithMinMatches sets how many distinct fields a row must match to count as a header.
func WithMinMatches(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.minMatches = n
		}
	}
}

// NewResolver creates a Resolver with default thresholds.
func NewResolver(logger logging.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		logger:         logging.OrDefault(logger),
		fuzzyThreshold: DefaultFuzzyThreshold,
		minMatches:     DefaultMinMatches,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Match scores one raw header against the keyword sets. Exact keyword hits score 1.0;
// otherwise the best fuzzy ratio is returned when it reaches the threshold.
// An empty field means no match.
func (r *Resolver) Match(raw string) (models.CanonicalField, float64) {
	tokens := textutils.Tokens(raw)
	if len(tokens) == 0 {
		return "", 0
	}
	norm := strings.Join(tokens, " ")

	if isDebitCredit(tokens) {
		return models.FieldDebitCredit, 1
	}

	var best models.CanonicalField
	bestLen := 0
	for _, set := range keywordSets {
		for _, kw := range set.keywords {
			if len(kw) > bestLen && containsKeyword(norm, kw) {
				best, bestLen = set.field, len(kw)
			}
		}
	}
	if best != "" {
		return best, 1
	}

	bestScore := 0.0
	for _, set := range keywordSets {
		for _, kw := range set.keywords {
			if len(kw) <= 3 {
				continue
			}
			score := textutils.Similarity(norm, kw)
			for _, tok := range tokens {
				if s := textutils.Similarity(tok, kw); s > score {
					score = s
				}
			}
			if score > bestScore {
				best, bestScore = set.field, score
			}
		}
	}
	if bestScore >= r.fuzzyThreshold {
		return best, bestScore
	}
	return "", bestScore
}

func containsKeyword(norm, kw string) bool {
	if len(kw) <= 3 {
		return strings.Contains(" "+norm+" ", " "+kw+" ")
	}
	return strings.Contains(norm, kw)
}

func isDebitCredit(tokens []string) bool {
	hasDebit, hasCredit := false, false
	for _, t := range tokens {
		hasDebit = hasDebit || debitRoots[t]
		hasCredit = hasCredit || creditRoots[t]
	}
	return hasDebit && hasCredit
}

// Resolve inspects the first row of the table. When it matches at least the
// configured number of distinct canonical fields it is treated as a header;
// otherwise the positional fallback layout is assigned.
func (r *Resolver) Resolve(table models.ReconstructedTable) Resolution {
	width := table.ColumnCount()
	if table.RowCount() == 0 || width == 0 {
		return Resolution{Map: models.NewCanonicalColumnMap()}
	}

	first := make([]string, width)
	copy(first, table.Matrix[0])

	type candidate struct {
		field models.CanonicalField
		score float64
	}
	candidates := make([]candidate, width)
	distinct := make(map[models.CanonicalField]bool)
	for i, raw := range first {
		field, score := r.Match(raw)
		candidates[i] = candidate{field: field, score: score}
		if field != "" {
			distinct[field] = true
		}
	}

	if len(distinct) < r.minMatches {
		r.logger.Debug("First row is data, using positional headers",
			logging.F(logging.FieldTableID, table.TableID),
			logging.F(logging.FieldCount, len(distinct)))
		return Resolution{Map: Fallback(width)}
	}

	// each field goes to its best-scoring header; ties go to the leftmost
	owner := make(map[models.CanonicalField]int)
	for i, c := range candidates {
		if c.field == "" {
			continue
		}
		if j, ok := owner[c.field]; !ok || c.score > candidates[j].score {
			owner[c.field] = i
		}
	}

	m := models.NewCanonicalColumnMap()
	names := make([]string, width)
	for i, raw := range first {
		c := candidates[i]
		if c.field != "" && owner[c.field] == i {
			m.Fields[raw] = c.field
			names[i] = string(c.field)
			continue
		}
		names[i] = textutils.CollapseSpaces(raw)
	}
	m.Columns = UniqueNames(names)

	r.logger.Debug("Resolved header row",
		logging.F(logging.FieldTableID, table.TableID),
		logging.F(logging.FieldCount, len(distinct)))
	return Resolution{Map: m, HasHeaderRow: true}
}

// Fallback returns the positional column map for a table of the given width.
func Fallback(width int) models.CanonicalColumnMap {
	m := models.NewCanonicalColumnMap()
	names := make([]string, width)
	for i := range names {
		if i < len(FallbackHeaders) {
			m.Fields[FallbackHeaders[i]] = fallbackFields[i]
			names[i] = string(fallbackFields[i])
		}
	}
	m.Columns = UniqueNames(names)
	return m
}

// UniqueNames fills blanks with column_N and suffixes repeated names.
func UniqueNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int)
	for i, n := range names {
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		seen[n]++
		if seen[n] > 1 {
			n = fmt.Sprintf("%s_%d", n, seen[n])
		}
		out[i] = n
	}
	return out
}

// Apply resolves the table and returns its data rows under the resolved column names.
// Blank rows are dropped.
func (r *Resolver) Apply(table models.ReconstructedTable) (models.Frame, Resolution) {
	res := r.Resolve(table)
	return ToFrame(table, res), res
}

// ToFrame builds a frame from the table using an already computed resolution.
func ToFrame(table models.ReconstructedTable, res Resolution) models.Frame {
	frame := models.Frame{Columns: append([]string(nil), res.Map.Columns...)}
	start := 0
	if res.HasHeaderRow {
		start = 1
	}
	width := len(frame.Columns)
	for _, values := range table.Matrix[min(start, len(table.Matrix)):] {
		row := models.FrameRow{
			Cells:   make([]models.Cell, width),
			TableID: table.TableID,
			Page:    table.Page,
		}
		for j := 0; j < width; j++ {
			v := ""
			if j < len(values) {
				v = strings.TrimSpace(values[j])
			}
			row.Cells[j] = models.Text(v)
		}
		if !row.IsBlank() {
			frame.Rows = append(frame.Rows, row)
		}
	}
	return frame
}
