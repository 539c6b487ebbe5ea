// Package pipeline turns an OCR document into transaction rows by trying a
// fixed chain of extraction strategies until one produces rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"banklytik/statement-normalizer/internal/columnmap"
	"banklytik/statement-normalizer/internal/grid"
	"banklytik/statement-normalizer/internal/header"
	"banklytik/statement-normalizer/internal/institution"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/merge"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/normalizer"
	"banklytik/statement-normalizer/internal/parsererror"
)

// Strategy names one extraction step.
type Strategy string

const (
	StrategyInstitution Strategy = "institution_parser"
	StrategyAIMapping   Strategy = "ai_column_mapping"
	StrategyStructural  Strategy = "structural_merge"
	StrategyHeuristic   Strategy = "heuristic_cleaner"
	StrategyNone        Strategy = "none"
)

// Status is the outcome of one attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrNotApplicable marks a step that had nothing to work with.
var ErrNotApplicable = errors.New("strategy not applicable")

// Attempt records one strategy run.
type Attempt struct {
	Strategy Strategy      `json:"strategy" yaml:"strategy"`
	Status   Status        `json:"status" yaml:"status"`
	Rows     int           `json:"rows" yaml:"rows"`
	Err      error         `json:"-" yaml:"-"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Result is the outcome of a run. Rows is empty only when every strategy failed.
type Result struct {
	RunID       string                  `json:"run_id"`
	Source      string                  `json:"source"`
	Institution string                  `json:"institution,omitempty"`
	Strategy    Strategy                `json:"strategy"`
	Rows        []models.TransactionRow `json:"-"`
	Attempts    []Attempt               `json:"attempts"`
	Stats       models.ProcessingStats  `json:"stats"`
}

// Empty reports whether no transactions were extracted.
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Err returns ErrNoTransactions for an empty result.
func (r *Result) Err() error {
	if r.Empty() {
		return parsererror.ErrNoTransactions
	}
	return nil
}

// Options select per-run behaviour.
type Options struct {
	// Institution is an explicit institution code. Empty or AUTO sniffs the text.
	Institution string
}

// Orchestrator runs the strategy chain.
type Orchestrator struct {
	normalizer *normalizer.Normalizer
	detector   *institution.Detector
	registry   *institution.Registry
	mapper     columnmap.Mapper
	grid       *grid.Reconstructor
	headers    *header.Resolver
	merger     *merge.Orchestrator
	minScore   float64
	maxTables  int
	maxRows    int
	maxChars   int
	logger     logging.Logger
	newRunID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInstitutions enables the institution parser step.
func WithInstitutions(detector *institution.Detector, registry *institution.Registry) Option {
	return func(o *Orchestrator) {
		o.detector = detector
		o.registry = registry
	}
}

// WithMapper enables the AI column mapping step.
func WithMapper(m columnmap.Mapper) Option {
	return func(o *Orchestrator) {
		o.mapper = m
	}
}

// WithSampleLimits caps the sample sent to the mapper.
func WithSampleLimits(maxTables, maxRows, maxChars int) Option {
	return func(o *Orchestrator) {
		o.maxTables, o.maxRows, o.maxChars = maxTables, maxRows, maxChars
	}
}

// WithMinTableScore sets the transaction likelihood a table needs to be used.
// Zero keeps every table.
func WithMinTableScore(score float64) Option {
	return func(o *Orchestrator) {
		if score >= 0 {
			o.minScore = score
		}
	}
}

// WithGrid replaces the table reconstructor.
func WithGrid(r *grid.Reconstructor) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.grid = r
		}
	}
}

// WithHeaderResolver replaces the header resolver.
func WithHeaderResolver(r *header.Resolver) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.headers = r
		}
	}
}

// WithMerger replaces the table merger.
func WithMerger(m *merge.Orchestrator) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.merger = m
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newRunID = gen
		}
	}
}

// New creates an Orchestrator. Without WithInstitutions and WithMapper the
// first two steps are skipped.
func New(n *normalizer.Normalizer, logger logging.Logger, opts ...Option) *Orchestrator {
	logger = logging.OrDefault(logger)
	o := &Orchestrator{
		normalizer: n,
		grid:       grid.NewReconstructor(logger),
		headers:    header.NewResolver(logger),
		merger:     merge.NewOrchestrator(logger),
		minScore:   grid.DefaultMinScore,
		maxTables:  columnmap.DefaultMaxTables,
		maxRows:    columnmap.DefaultMaxRows,
		maxChars:   columnmap.DefaultMaxChars,
		logger:     logger,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds what the steps of one Run share.
type run struct {
	doc         models.OCRDocument
	opts        Options
	institution string
	tables      []models.ReconstructedTable
	built       bool
}

type step struct {
	strategy Strategy
	fn       func(ctx context.Context, r *run) ([]models.TransactionRow, error)
}

// Run executes the chain. It never fails and never panics: a step that errors
// or panics is recorded and the next one is tried.
func (o *Orchestrator) Run(ctx context.Context, doc models.OCRDocument, opts Options) *Result {
	res := &Result{RunID: o.newRunID(), Source: doc.Source, Strategy: StrategyNone}
	logger := o.logger.WithField(logging.FieldRunID, res.RunID)
	state := &run{doc: doc, opts: opts}

	steps := []step{
		{StrategyInstitution, o.institutionStep},
		{StrategyAIMapping, o.mappingStep},
		{StrategyStructural, o.structuralStep},
		{StrategyHeuristic, o.heuristicStep},
	}
	for _, s := range steps {
		rows, attempt := o.attempt(ctx, s, state)
		res.Attempts = append(res.Attempts, attempt)

		fields := []logging.Field{
			logging.F(logging.FieldStrategy, string(s.strategy)),
			logging.F(logging.FieldStatus, string(attempt.Status)),
			logging.F(logging.FieldCount, attempt.Rows),
			logging.F(logging.FieldDuration, attempt.Duration.Milliseconds()),
		}
		switch attempt.Status {
		case StatusFailed:
			logger.WithError(attempt.Err).Warn("Strategy failed, falling through", fields...)
		default:
			logger.Debug("Strategy finished", fields...)
		}

		if attempt.Status == StatusSuccess {
			res.Rows = rows
			res.Strategy = s.strategy
			break
		}
	}

	res.Institution = state.institution
	res.Stats = models.NewProcessingStats(res.Rows)
	if res.Empty() {
		logger.Warn("No transactions extracted",
			logging.F(logging.FieldFile, doc.Source))
	} else {
		logger.Info("Extracted transactions",
			logging.F(logging.FieldFile, doc.Source),
			logging.F(logging.FieldStrategy, string(res.Strategy)),
			logging.F(logging.FieldCount, len(res.Rows)),
			logging.F("flagged", res.Stats.Flagged()))
	}
	return res
}

func (o *Orchestrator) attempt(ctx context.Context, s step, state *run) (rows []models.TransactionRow, a Attempt) {
	a.Strategy = s.strategy
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			a.Status = StatusFailed
			a.Err = parsererror.Recover(string(s.strategy), r)
		}
		a.Duration = time.Since(start)
		a.Rows = len(rows)
		if a.Err != nil {
			a.Error = a.Err.Error()
		}
	}()

	rows, err := s.fn(ctx, state)
	switch {
	case errors.Is(err, ErrNotApplicable):
		a.Status = StatusSkipped
		a.Err = err
		rows = nil
	case err != nil:
		a.Status = StatusFailed
		a.Err = err
		rows = nil
	case len(rows) == 0:
		a.Status = StatusEmpty
	default:
		a.Status = StatusSuccess
	}
	return rows, a
}

// reconstructed builds the document's tables once per run and drops the ones
// unlikely to hold transactions.
func (o *Orchestrator) reconstructed(state *run) []models.ReconstructedTable {
	if !state.built {
		tables, dropped := grid.Select(o.grid.Reconstruct(state.doc), o.minScore)
		for _, d := range dropped {
			o.logger.Debug("Dropping table unlikely to hold transactions",
				logging.F(logging.FieldTableID, d.TableID),
				logging.F(logging.FieldPage, d.Page),
				logging.F("score", d.Score))
		}
		state.tables = tables
		state.built = true
	}
	return state.tables
}

func (o *Orchestrator) institutionStep(_ context.Context, state *run) ([]models.TransactionRow, error) {
	if o.registry == nil {
		return nil, fmt.Errorf("%w: no institution parsers", ErrNotApplicable)
	}
	lines := state.doc.LineTexts()
	code := institution.NormalizeCode(state.opts.Institution)
	if code == "" || code == institution.CodeAuto {
		if o.detector == nil {
			return nil, fmt.Errorf("%w: institution detection disabled", ErrNotApplicable)
		}
		code = o.detector.Detect(lines)
	}
	state.institution = code
	if code == institution.CodeUnknown {
		return nil, fmt.Errorf("%w: institution not identified", ErrNotApplicable)
	}
	parser, ok := o.registry.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: no parser for institution %s", ErrNotApplicable, code)
	}
	return o.normalizer.Normalize(parser.Parse(lines)), nil
}

func (o *Orchestrator) mappingStep(ctx context.Context, state *run) ([]models.TransactionRow, error) {
	if o.mapper == nil {
		return nil, fmt.Errorf("%w: column mapping service disabled", ErrNotApplicable)
	}
	tables := o.reconstructed(state)
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrNotApplicable)
	}
	sample, _, err := columnmap.BuildSample(grid.ByLikelihood(tables), o.maxTables, o.maxRows, o.maxChars)
	if err != nil {
		return nil, err
	}
	mapping, err := o.mapper.Suggest(ctx, sample)
	if err != nil {
		return nil, err
	}
	frames := columnmap.Apply(tables, mapping)
	return o.normalizer.Normalize(o.merger.Merge(frames)), nil
}

func (o *Orchestrator) structuralStep(_ context.Context, state *run) ([]models.TransactionRow, error) {
	tables := o.reconstructed(state)
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrNotApplicable)
	}
	frames := make([]models.Frame, 0, len(tables))
	for _, t := range tables {
		frame, _ := o.headers.Apply(t)
		frames = append(frames, frame)
	}
	return o.normalizer.Normalize(o.merger.Merge(frames)), nil
}

// heuristicStep reads every text line as one positional table. Documents
// without lines are flattened from their cells.
func (o *Orchestrator) heuristicStep(_ context.Context, state *run) ([]models.TransactionRow, error) {
	lines := state.doc.Lines
	if len(lines) == 0 {
		lines = linesFromCells(state.doc.Cells)
	}
	tables := o.grid.LinesToTable(lines)
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no text", ErrNotApplicable)
	}

	width := 0
	for _, t := range tables {
		width = max(width, t.ColumnCount())
	}
	res := header.Resolution{Map: header.Fallback(width)}
	combined := models.Frame{Columns: append([]string(nil), res.Map.Columns...)}
	for _, t := range tables {
		for _, row := range header.ToFrame(t, res).Rows {
			if merge.IsHeaderRow(row, merge.HeaderKeywords, merge.DefaultHeaderKeywordRatio) {
				continue
			}
			combined.Rows = append(combined.Rows, row)
		}
	}
	return o.normalizer.Normalize(combined), nil
}

// linesFromCells joins the cells of each OCR row into one line, with column
// breaks kept as double spaces.
func linesFromCells(cells []models.RawCell) []models.TextLine {
	type rowKey struct{ page, table, row int }
	byRow := make(map[rowKey][]models.RawCell)
	var keys []rowKey
	for _, c := range cells {
		k := rowKey{c.Page, c.TableID, c.Row}
		if _, ok := byRow[k]; !ok {
			keys = append(keys, k)
		}
		byRow[k] = append(byRow[k], c)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.page != b.page {
			return a.page < b.page
		}
		if a.table != b.table {
			return a.table < b.table
		}
		return a.row < b.row
	})

	lines := make([]models.TextLine, 0, len(keys))
	for _, k := range keys {
		row := byRow[k]
		sort.SliceStable(row, func(i, j int) bool { return row[i].Col < row[j].Col })
		parts := make([]string, 0, len(row))
		for _, c := range row {
			if t := strings.TrimSpace(c.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, models.TextLine{Page: k.page, Text: strings.Join(parts, "  ")})
		}
	}
	return lines
}
