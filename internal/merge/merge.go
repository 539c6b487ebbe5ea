// Package merge combines the header-resolved tables of a multi-page statement
// into one frame.
package merge

import (
	"strings"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

// Default scoring constants for column alignment.
const (
	DefaultMatchThreshold     = 0.5
	DefaultTypeWeight         = 0.4
	DefaultNameWeight         = 0.3
	DefaultContentWeight      = 0.3
	DefaultHeaderKeywordRatio = 0.3
)

// Method names the path Merge took.
type Method string

const (
	MethodNone     Method = "none"
	MethodSingle   Method = "single"
	MethodExact    Method = "exact_overlap"
	MethodAligned  Method = "aligned"
	MethodFallback Method = "largest_table"
)

// Report describes one merge.
type Report struct {
	Method            Method
	InputRows         int
	OutputRows        int
	HeaderRowsRemoved int
	FramesLeftOut     int
	SharedColumns     []string
}

// Orchestrator merges frames by exact canonical overlap or by scored column alignment.
type Orchestrator struct {
	logger         logging.Logger
	threshold      float64
	typeWeight     float64
	nameWeight     float64
	contentWeight  float64
	headerRatio    float64
	headerKeywords []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMatchThreshold sets the combined score a column pair must exceed.
func WithMatchThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		if threshold >= 0 && threshold <= 1 {
			o.threshold = threshold
		}
	}
}

// WithWeights sets the type, name and content weights of the alignment score.
func WithWeights(typeWeight, nameWeight, contentWeight float64) Option {
	return func(o *Orchestrator) {
		if typeWeight < 0 || nameWeight < 0 || contentWeight < 0 {
			return
		}
		o.typeWeight, o.nameWeight, o.contentWeight = typeWeight, nameWeight, contentWeight
	}
}

// WithHeaderKeywordRatio sets the share of header keywords that marks a repeated header row.
func WithHeaderKeywordRatio(ratio float64) Option {
	return func(o *Orchestrator) {
		if ratio > 0 && ratio <= 1 {
			o.headerRatio = ratio
		}
	}
}

// NewOrchestrator creates an Orchestrator with the default scoring constants.
func NewOrchestrator(logger logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:         logging.OrDefault(logger),
		threshold:      DefaultMatchThreshold,
		typeWeight:     DefaultTypeWeight,
		nameWeight:     DefaultNameWeight,
		contentWeight:  DefaultContentWeight,
		headerRatio:    DefaultHeaderKeywordRatio,
		headerKeywords: HeaderKeywords,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Merge combines frames into one. It never fails: when nothing can be merged
// the largest input frame is returned unmodified.
func (o *Orchestrator) Merge(frames []models.Frame) models.Frame {
	merged, _ := o.MergeWithReport(frames)
	return merged
}

// MergeWithReport is Merge plus a description of what happened.
func (o *Orchestrator) MergeWithReport(frames []models.Frame) (models.Frame, Report) {
	report := Report{Method: MethodNone}
	var usable []models.Frame
	for _, f := range frames {
		report.InputRows += f.Len()
		if f.Len() > 0 && len(f.Columns) > 0 {
			usable = append(usable, f)
		}
	}

	switch len(usable) {
	case 0:
		if len(frames) == 0 {
			return models.Frame{}, report
		}
		largest := largestFrame(frames)
		report.Method = MethodFallback
		report.OutputRows = largest.Len()
		return largest.Clone(), report
	case 1:
		report.Method = MethodSingle
		report.OutputRows = usable[0].Len()
		return usable[0].Clone(), report
	}

	if shared := sharedCanonicalColumns(usable); len(shared) > 0 {
		merged := concatByName(usable, shared)
		merged, removed := o.dropHeaderRows(merged)
		report.Method = MethodExact
		report.SharedColumns = shared
		report.HeaderRowsRemoved = removed
		report.OutputRows = merged.Len()
		o.logMerge(report)
		return merged, report
	}

	merged, leftOut, ok := o.align(usable)
	if !ok {
		largest := largestFrame(usable)
		report.Method = MethodFallback
		report.FramesLeftOut = len(usable) - 1
		report.OutputRows = largest.Len()
		o.logger.Warn("No compatible columns between tables, keeping largest table",
			logging.F(logging.FieldCount, len(usable)))
		return largest.Clone(), report
	}
	merged, removed := o.dropHeaderRows(merged)
	report.Method = MethodAligned
	report.FramesLeftOut = leftOut
	report.HeaderRowsRemoved = removed
	report.OutputRows = merged.Len()
	o.logMerge(report)
	return merged, report
}

func (o *Orchestrator) logMerge(r Report) {
	o.logger.Info("Merged tables",
		logging.F(logging.FieldStrategy, string(r.Method)),
		logging.F(logging.FieldCount, r.OutputRows),
		logging.F("header_rows_removed", r.HeaderRowsRemoved),
		logging.F("frames_left_out", r.FramesLeftOut))
}

// largestFrame returns the frame with the most rows; the first wins ties.
func largestFrame(frames []models.Frame) models.Frame {
	best := frames[0]
	for _, f := range frames[1:] {
		if f.Len() > best.Len() {
			best = f
		}
	}
	return best
}

// sharedCanonicalColumns returns the canonical column names present in every
// frame, in the order of the first frame.
func sharedCanonicalColumns(frames []models.Frame) []string {
	var shared []string
	for _, name := range frames[0].Columns {
		field, ok := models.ParseCanonicalField(name)
		if !ok || field == models.FieldOther {
			continue
		}
		inAll := true
		for _, f := range frames[1:] {
			if !f.HasColumn(name) {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, name)
		}
	}
	return shared
}

// concatByName stacks frames on a column union: shared columns first, then the
// remaining columns in first-seen order. Missing cells are null.
func concatByName(frames []models.Frame, shared []string) models.Frame {
	columns := append([]string(nil), shared...)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	for _, f := range frames {
		for _, c := range f.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}

	out := models.Frame{Columns: columns}
	for _, f := range frames {
		index := make([]int, len(columns))
		for i, c := range columns {
			index[i] = f.ColumnIndex(c)
		}
		for _, row := range f.Rows {
			out.Rows = append(out.Rows, project(row, index))
		}
	}
	return out
}

// project builds a row whose cell i is row.Cells[index[i]], or null when the
// index is negative or out of range.
func project(row models.FrameRow, index []int) models.FrameRow {
	cells := make([]models.Cell, len(index))
	for i, src := range index {
		if src >= 0 && src < len(row.Cells) {
			cells[i] = row.Cells[src]
		} else {
			cells[i] = models.Null()
		}
	}
	return models.FrameRow{Cells: cells, TableID: row.TableID, Page: row.Page}
}

// align maps every other frame onto the columns of the largest frame. Frames
// with no accepted column match are left out. ok is false when no frame could
// be aligned.
func (o *Orchestrator) align(frames []models.Frame) (models.Frame, int, bool) {
	baseIdx := 0
	for i, f := range frames {
		if f.Len() > frames[baseIdx].Len() {
			baseIdx = i
		}
	}
	base := frames[baseIdx]
	baseTypes := columnTypes(base)

	// Frames keep their input order in the output.
	out := models.Frame{Columns: append([]string(nil), base.Columns...)}
	leftOut, aligned := 0, 0
	for i, f := range frames {
		if i == baseIdx {
			identity := make([]int, len(base.Columns))
			for j := range identity {
				identity[j] = j
			}
			for _, row := range f.Rows {
				out.Rows = append(out.Rows, project(row, identity))
			}
			continue
		}
		index, matches := o.matchColumns(base, baseTypes, f)
		if matches == 0 {
			leftOut++
			o.logger.Debug("Table has no column matching the base table, leaving it out",
				logging.F(logging.FieldTableID, firstTableID(f)))
			continue
		}
		aligned++
		for _, row := range f.Rows {
			out.Rows = append(out.Rows, project(row, index))
		}
	}
	return out, leftOut, aligned > 0
}

// matchColumns picks, for each base column, the best-scoring unused source
// column above the threshold. The result maps base positions to source positions.
func (o *Orchestrator) matchColumns(base models.Frame, baseTypes []columnType, src models.Frame) ([]int, int) {
	srcTypes := columnTypes(src)
	used := make([]bool, len(src.Columns))
	index := make([]int, len(base.Columns))
	matches := 0
	for i, name := range base.Columns {
		index[i] = -1
		best := 0.0
		for j, srcName := range src.Columns {
			if used[j] {
				continue
			}
			score := o.score(name, baseTypes[i], srcName, srcTypes[j])
			if score > o.threshold && score > best {
				best = score
				index[i] = j
			}
		}
		if index[i] >= 0 {
			used[index[i]] = true
			matches++
		}
	}
	return index, matches
}

func (o *Orchestrator) score(nameA string, typeA columnType, nameB string, typeB columnType) float64 {
	typeScore := 0.0
	if typeA == typeB {
		typeScore = 1
	}
	return o.typeWeight*typeScore +
		o.nameWeight*nameSimilarity(nameA, nameB) +
		o.contentWeight*contentSimilarity(typeA, typeB)
}

func columnTypes(f models.Frame) []columnType {
	types := make([]columnType, len(f.Columns))
	for i, c := range f.Columns {
		types[i] = inferType(f.ColumnValues(c))
	}
	return types
}

func firstTableID(f models.Frame) int {
	if len(f.Rows) == 0 {
		return 0
	}
	return f.Rows[0].TableID
}

// IsHeaderRow reports whether the joined row text contains at least ratio of
// the header keywords.
func IsHeaderRow(row models.FrameRow, keywords []string, ratio float64) bool {
	text := strings.ToLower(row.Joined())
	if text == "" || len(keywords) == 0 {
		return false
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return float64(hits) >= ratio*float64(len(keywords))
}

func (o *Orchestrator) dropHeaderRows(f models.Frame) (models.Frame, int) {
	kept := f.Rows[:0:0]
	removed := 0
	for _, row := range f.Rows {
		if IsHeaderRow(row, o.headerKeywords, o.headerRatio) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	f.Rows = kept
	return f, removed
}
