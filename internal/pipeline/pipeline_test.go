package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"banklytik/statement-normalizer/internal/columnmap"
	"banklytik/statement-normalizer/internal/daterepair"
	"banklytik/statement-normalizer/internal/datevalidation"
	"banklytik/statement-normalizer/internal/inference"
	"banklytik/statement-normalizer/internal/institution"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/normalizer"
	"banklytik/statement-normalizer/internal/parsererror"
	"banklytik/statement-normalizer/internal/rules"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMapper struct {
	mock.Mock
}

func (m *mockMapper) Suggest(ctx context.Context, sample columnmap.Sample) (columnmap.ColumnMapping, error) {
	args := m.Called(ctx, sample)
	return args.Get(0).(columnmap.ColumnMapping), args.Error(1)
}

type panicMapper struct{}

func (panicMapper) Suggest(context.Context, columnmap.Sample) (columnmap.ColumnMapping, error) {
	panic("index out of range")
}

func fixedNow() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func newOrchestrator(logger logging.Logger, opts ...Option) *Orchestrator {
	engine := daterepair.NewEngine(rules.Empty(), logger, daterepair.WithClock(fixedNow))
	validator := datevalidation.NewValidator(logger, datevalidation.WithClock(fixedNow))
	resolver := inference.NewResolver(logger, inference.WithClock(fixedNow))
	opts = append([]Option{WithRunIDs(func() string { return "run-1" })}, opts...)
	return New(normalizer.New(engine, validator, resolver, logger), logger, opts...)
}

// table lays out rows as OCR cells of one table region.
func table(tableID, page int, rows ...[]string) []models.RawCell {
	var cells []models.RawCell
	for r, row := range rows {
		for c, text := range row {
			cells = append(cells, models.RawCell{TableID: tableID, Page: page, Row: r + 1, Col: c + 1, Text: text})
		}
	}
	return cells
}

func day(d int) time.Time {
	return time.Date(2025, time.February, d, 0, 0, 0, 0, time.UTC)
}

func statuses(res *Result) []Status {
	out := make([]Status, len(res.Attempts))
	for i, a := range res.Attempts {
		out[i] = a.Status
	}
	return out
}

func TestRun_RepairsOCRDate(t *testing.T) {
	logger := logging.NewMockLogger()
	doc := models.OCRDocument{Source: "statement.json", Cells: table(1, 1,
		[]string{"Date", "Description", "Debit", "Credit", "Balance"},
		[]string{"24Feb 2025", "POS purchase", "100.00", "", "900.00"},
	)}

	res := newOrchestrator(logger).Run(context.Background(), doc, Options{})

	require.False(t, res.Empty())
	assert.NoError(t, res.Err())
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "statement.json", res.Source)
	assert.Equal(t, StrategyStructural, res.Strategy)
	assert.Equal(t, []Status{StatusSkipped, StatusSkipped, StatusSuccess}, statuses(res))

	require.Len(t, res.Rows, 1)
	r := res.Rows[0]
	assert.Equal(t, "24Feb 2025", r.RawDate)
	assert.Equal(t, "24 Feb 2025", r.DateValidation.Repaired)
	require.NotNil(t, r.Date)
	assert.Equal(t, day(24), *r.Date)
	assert.Equal(t, models.CategoryNone, r.DateValidation.Category)
	assert.True(t, r.Debit.Equal(decimal.NewFromInt(100)))

	assert.Equal(t, 1, res.Stats.TotalProcessed)
	assert.Equal(t, 1, res.Stats.Categories[models.CategoryNone])

	entries := logger.GetEntriesByLevel("INFO")
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "Extracted transactions", last.Message)
	runID, ok := last.FieldValue(logging.FieldRunID)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)
}

func TestRun_InfersMissingDayFromTable(t *testing.T) {
	doc := models.OCRDocument{Cells: table(1, 1,
		[]string{"Date", "Description", "Debit", "Credit", "Balance"},
		[]string{"05 Feb 2025", "Transfer from Ada", "", "2,000.00", "12,000.00"},
		[]string{"09 Feb 2025", "Web purchase", "20.00", "", "11,980.00"},
		[]string{"Feb 2025", "Airtime MTN", "100.00", "", "11,880.00"},
		[]string{"28 Feb 2025", "Reversal", "", "20.00", "11,900.00"},
	)}

	res := newOrchestrator(logging.NewMockLogger()).Run(context.Background(), doc, Options{})
	require.Len(t, res.Rows, 4)

	r := res.Rows[2]
	assert.Equal(t, "Feb 2025", r.RawDate)
	assert.Nil(t, r.DateValidation.Parsed)
	assert.Equal(t, models.CategoryFlagReview, r.DateValidation.Category)
	require.NotNil(t, r.Inference)
	assert.Equal(t, models.ConfidenceHigh, r.Inference.Confidence)
	require.NotNil(t, r.Date)
	assert.Equal(t, day(9), *r.Date)

	assert.Equal(t, 1, res.Stats.Inferred)
	assert.Equal(t, 1, res.Stats.Flagged())
}

func TestRun_EmptyDateIsCritical(t *testing.T) {
	doc := models.OCRDocument{Cells: table(1, 1,
		[]string{"Date", "Description", "Debit", "Balance"},
		[]string{"", "Card fee", "50.00", "850.00"},
	)}

	res := newOrchestrator(nil).Run(context.Background(), doc, Options{})
	require.Len(t, res.Rows, 1)

	r := res.Rows[0]
	assert.Nil(t, r.Date)
	assert.Nil(t, r.Inference)
	assert.Equal(t, models.CategoryFlagCritical, r.DateValidation.Category)
	assert.True(t, r.DateValidation.HasIssue(models.IssueNullDate))
	assert.Empty(t, r.DateValidation.CorrectionsApplied)
	assert.True(t, r.RowIssues.Has(models.RowIssueInvalidDate))
}

func TestRun_MergesTablesAcrossPages(t *testing.T) {
	cells := table(1, 1,
		[]string{"Date", "Debit", "Credit", "Balance"},
		[]string{"05 Feb 2025", "1,000.00", "", "9,000.00"},
		[]string{"06 Feb 2025", "", "500.00", "9,500.00"},
		[]string{"07 Feb 2025", "200.00", "", "9,300.00"},
	)
	cells = append(cells, table(2, 2,
		[]string{"Date", "Amount", "Description"},
		[]string{"Trans. Date Time", "Debit/Credit Amount", "Description / Narration Reference Balance"},
		[]string{"08 Feb 2025", "-300.00", "POS purchase"},
		[]string{"09 Feb 2025", "1,200.00", "Transfer from Ada"},
	)...)

	res := newOrchestrator(logging.NewMockLogger()).Run(context.Background(), models.OCRDocument{Cells: cells}, Options{})

	assert.Equal(t, StrategyStructural, res.Strategy)
	require.Len(t, res.Rows, 5, "three rows plus three rows minus one repeated header")

	first := res.Rows[0]
	assert.True(t, first.Debit.Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, first.Description)
	assert.Equal(t, 1, first.TableID)

	fourth := res.Rows[3]
	assert.True(t, fourth.Debit.Equal(decimal.NewFromInt(300)))
	assert.True(t, fourth.Balance.IsZero())
	assert.Equal(t, "POS purchase", fourth.Description)
	assert.Equal(t, 2, fourth.TableID)
	assert.Equal(t, 2, fourth.Page)
}

func TestRun_DropsSummaryTables(t *testing.T) {
	cells := table(1, 1,
		[]string{"Period", "Opening balance", "Closing balance"},
		[]string{"01 Feb 2025", "10,000.00", "11,980.00"},
	)
	cells = append(cells, table(2, 1,
		[]string{"Date", "Description", "Debit", "Credit", "Balance"},
		[]string{"05 Feb 2025", "Transfer from Ada", "", "2,000.00", "12,000.00"},
		[]string{"09 Feb 2025", "Web purchase", "20.00", "", "11,980.00"},
	)...)
	doc := models.OCRDocument{Cells: cells}

	t.Run("summary table is not merged", func(t *testing.T) {
		logger := logging.NewMockLogger()
		res := newOrchestrator(logger).Run(context.Background(), doc, Options{})

		assert.Equal(t, StrategyStructural, res.Strategy)
		require.Len(t, res.Rows, 2)
		for _, r := range res.Rows {
			assert.Equal(t, 2, r.TableID)
		}
		assert.True(t, logger.HasEntry("DEBUG", "Dropping table unlikely to hold transactions"))
	})

	t.Run("mapper sample leaves out the summary table", func(t *testing.T) {
		m := &mockMapper{}
		m.On("Suggest", mock.Anything, mock.MatchedBy(func(s columnmap.Sample) bool {
			return len(s.Tables) == 1 && s.Tables[0].TableID == 2
		})).Return(columnmap.ColumnMapping{}, errors.New("no mapping")).Once()

		newOrchestrator(nil, WithMapper(m)).Run(context.Background(), doc, Options{})
		m.AssertExpectations(t)
	})
}

func TestRun_InstitutionParser(t *testing.T) {
	profiles := institution.DefaultProfiles()
	opts := WithInstitutions(
		institution.NewDetector(profiles, 0, nil),
		institution.NewRegistry(profiles, nil),
	)

	t.Run("detected from text", func(t *testing.T) {
		doc := models.OCRDocument{Lines: []models.TextLine{
			{Page: 1, Text: "Kuda Microfinance Bank Statement"},
			{Page: 1, Text: "12/02/2025 10:15:30 Airtime purchase 08012345678 ₦500.00 ₦4,500.00"},
			{Page: 1, Text: "13/02/2025 09:00:00 Inward transfer from Ada ₦2,000.00 ₦6,500.00"},
			{Page: 1, Text: "Page 1 of 2 15/02/2025 ₦1.00"},
		}}
		res := newOrchestrator(logging.NewMockLogger(), opts).Run(context.Background(), doc, Options{})

		assert.Equal(t, StrategyInstitution, res.Strategy)
		assert.Equal(t, "KUDA", res.Institution)
		require.Len(t, res.Rows, 2)
		assert.True(t, res.Rows[0].Debit.Equal(decimal.NewFromInt(500)))
		assert.True(t, res.Rows[1].Credit.Equal(decimal.NewFromInt(2000)))
		assert.Len(t, res.Attempts, 1)
	})

	t.Run("explicit code", func(t *testing.T) {
		doc := models.OCRDocument{Lines: []models.TextLine{
			{Page: 1, Text: "2025 Feb 24 07:36:01 Airtime MTN 08031234567 -₦100.00 ₦900.00"},
		}}
		res := newOrchestrator(nil, opts).Run(context.Background(), doc, Options{Institution: "opay"})

		assert.Equal(t, StrategyInstitution, res.Strategy)
		assert.Equal(t, "OPAY", res.Institution)
		require.Len(t, res.Rows, 1)
	})

	t.Run("no parser for institution falls through", func(t *testing.T) {
		doc := models.OCRDocument{Cells: table(1, 1,
			[]string{"Date", "Description", "Debit", "Balance"},
			[]string{"05 Feb 2025", "Card fee", "50.00", "850.00"},
		)}
		res := newOrchestrator(nil, opts).Run(context.Background(), doc, Options{Institution: "ZENITH"})

		assert.Equal(t, StrategyStructural, res.Strategy)
		require.NotEmpty(t, res.Attempts)
		assert.Equal(t, StatusSkipped, res.Attempts[0].Status)
		assert.ErrorIs(t, res.Attempts[0].Err, ErrNotApplicable)
	})
}

func TestRun_AIColumnMapping(t *testing.T) {
	doc := models.OCRDocument{Cells: table(4, 1,
		[]string{"Trans. Time", "Narration", "Money Out", "Money In", "Bal"},
		[]string{"24 Feb 2025", "POS purchase", "100.00", "", "900.00"},
		[]string{"25 Feb 2025", "Transfer from Ada", "", "2,000.00", "2,900.00"},
	)}
	mapping := columnmap.ColumnMapping{Tables: []columnmap.TableMapping{{
		TableID: 4,
		Page:    1,
		Header:  []string{"Trans. Time", "Narration", "Money Out", "Money In", "Bal"},
		Columns: map[string]models.CanonicalField{
			"Trans. Time": models.FieldDate,
			"Narration":   models.FieldDescription,
			"Money Out":   models.FieldDebit,
			"Money In":    models.FieldCredit,
			"Bal":         models.FieldBalance,
		},
	}}}

	t.Run("valid mapping wins", func(t *testing.T) {
		m := &mockMapper{}
		m.On("Suggest", mock.Anything, mock.MatchedBy(func(s columnmap.Sample) bool {
			return len(s.Tables) == 1 && s.Tables[0].TableID == 4
		})).Return(mapping, nil).Once()

		res := newOrchestrator(nil, WithMapper(m)).Run(context.Background(), doc, Options{})

		m.AssertExpectations(t)
		assert.Equal(t, StrategyAIMapping, res.Strategy)
		require.Len(t, res.Rows, 2)
		assert.True(t, res.Rows[0].Debit.Equal(decimal.NewFromInt(100)))
		assert.True(t, res.Rows[1].Credit.Equal(decimal.NewFromInt(2000)))
		assert.True(t, res.Rows[1].Balance.Equal(decimal.NewFromInt(2900)))
	})

	t.Run("service failure falls through", func(t *testing.T) {
		logger := logging.NewMockLogger()
		m := &mockMapper{}
		failure := &parsererror.ServiceError{Service: "gemini", Op: "generate", Err: context.DeadlineExceeded}
		m.On("Suggest", mock.Anything, mock.Anything).Return(columnmap.ColumnMapping{}, failure).Once()

		res := newOrchestrator(logger, WithMapper(m)).Run(context.Background(), doc, Options{})

		assert.Equal(t, StrategyStructural, res.Strategy)
		require.GreaterOrEqual(t, len(res.Attempts), 2)
		assert.Equal(t, StatusFailed, res.Attempts[1].Status)
		assert.ErrorIs(t, res.Attempts[1].Err, context.DeadlineExceeded)
		assert.NotEmpty(t, res.Attempts[1].Error)
		assert.True(t, logger.HasEntry("WARN", "Strategy failed, falling through"))
	})

	t.Run("panic is recovered", func(t *testing.T) {
		res := newOrchestrator(nil, WithMapper(panicMapper{})).Run(context.Background(), doc, Options{})

		assert.False(t, res.Empty())
		assert.Equal(t, StatusFailed, res.Attempts[1].Status)
		var invariant *parsererror.InvariantError
		assert.True(t, errors.As(res.Attempts[1].Err, &invariant))
	})
}

func TestRun_HeuristicCleaner(t *testing.T) {
	// Row index 0 makes the only region malformed, so no table survives.
	doc := models.OCRDocument{Cells: []models.RawCell{
		{TableID: 1, Page: 1, Row: 0, Col: 1, Text: "24 Feb 2025"},
		{TableID: 1, Page: 1, Row: 0, Col: 2, Text: "24 Feb 2025"},
		{TableID: 1, Page: 1, Row: 0, Col: 3, Text: "Airtime purchase"},
		{TableID: 1, Page: 1, Row: 0, Col: 4, Text: "-500.00"},
	}}

	res := newOrchestrator(logging.NewMockLogger()).Run(context.Background(), doc, Options{})

	assert.Equal(t, StrategyHeuristic, res.Strategy)
	assert.Equal(t, []Status{StatusSkipped, StatusSkipped, StatusSkipped, StatusSuccess}, statuses(res))
	require.Len(t, res.Rows, 1)
	r := res.Rows[0]
	require.NotNil(t, r.Date)
	assert.Equal(t, day(24), *r.Date)
	assert.Equal(t, "Airtime purchase", r.Description)
	assert.True(t, r.Debit.Equal(decimal.NewFromInt(500)))
}

func TestRun_Totality(t *testing.T) {
	profiles := institution.DefaultProfiles()
	unavailable := &mockMapper{}
	unavailable.On("Suggest", mock.Anything, mock.Anything).
		Return(columnmap.ColumnMapping{}, errors.New("service unavailable")).Maybe()
	full := []Option{
		WithInstitutions(institution.NewDetector(profiles, 0, nil), institution.NewRegistry(profiles, nil)),
		WithMapper(unavailable),
	}

	tests := []struct {
		name string
		doc  models.OCRDocument
	}{
		{"empty document", models.OCRDocument{}},
		{"blank lines", models.OCRDocument{Lines: []models.TextLine{{Page: 1, Text: "   "}}}},
		{"garbage cells", models.OCRDocument{Cells: []models.RawCell{
			{TableID: 1, Page: 1, Row: 1, Col: 1, Text: "lorem"},
			{TableID: 1, Page: 1, Row: -3, Col: 9, Text: "ipsum"},
			{TableID: 2, Page: 1, Row: 1, Col: 1, Text: "dolor sit"},
		}}},
		{"letterhead only", models.OCRDocument{Lines: []models.TextLine{
			{Page: 1, Text: "Statement of account"},
			{Page: 1, Text: "Customer name  Ada Obi"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res *Result
			require.NotPanics(t, func() {
				res = newOrchestrator(logging.NewMockLogger(), full...).Run(context.Background(), tt.doc, Options{})
			})
			require.NotNil(t, res)
			assert.True(t, res.Empty())
			assert.ErrorIs(t, res.Err(), parsererror.ErrNoTransactions)
			assert.Equal(t, StrategyNone, res.Strategy)
			assert.Len(t, res.Attempts, 4)
			assert.Equal(t, 0, res.Stats.TotalProcessed)
		})
	}
}

func TestLinesFromCells(t *testing.T) {
	lines := linesFromCells([]models.RawCell{
		{TableID: 1, Page: 2, Row: 1, Col: 2, Text: "b"},
		{TableID: 1, Page: 1, Row: 2, Col: 1, Text: "c"},
		{TableID: 1, Page: 2, Row: 1, Col: 1, Text: "a"},
		{TableID: 1, Page: 1, Row: 3, Col: 1, Text: "  "},
	})
	assert.Equal(t, []models.TextLine{
		{Page: 1, Text: "c"},
		{Page: 2, Text: "a  b"},
	}, lines)
}
