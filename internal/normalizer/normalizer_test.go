package normalizer

import (
	"testing"
	"time"

	"banklytik/statement-normalizer/internal/daterepair"
	"banklytik/statement-normalizer/internal/datevalidation"
	"banklytik/statement-normalizer/internal/inference"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/rules"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failureLog struct {
	failures []daterepair.Failure
}

func (f *failureLog) RecordFailure(failure daterepair.Failure) error {
	f.failures = append(f.failures, failure)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func newNormalizer(recorder daterepair.FailureRecorder) *Normalizer {
	logger := logging.NewMockLogger()
	opts := []daterepair.Option{daterepair.WithClock(fixedNow)}
	if recorder != nil {
		opts = append(opts, daterepair.WithFailureRecorder(recorder))
	}
	engine := daterepair.NewEngine(rules.Empty(), logger, opts...)
	validator := datevalidation.NewValidator(logger, datevalidation.WithClock(fixedNow))
	resolver := inference.NewResolver(logger, inference.WithClock(fixedNow))
	return New(engine, validator, resolver, logger)
}

func buildFrame(columns []string, rows ...[]string) models.Frame {
	f := models.Frame{Columns: columns}
	for _, r := range rows {
		cells := make([]models.Cell, len(r))
		for i, v := range r {
			cells[i] = models.Text(v)
		}
		f.Rows = append(f.Rows, models.FrameRow{Cells: cells, TableID: 1, Page: 1})
	}
	return f
}

func day(d int) time.Time {
	return time.Date(2025, time.February, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalize_Statement(t *testing.T) {
	frame := buildFrame(
		[]string{"date", "value_date", "description", "debit_credit", "balance", "channel", "transaction_reference"},
		[]string{"24Feb 2025", "24 Feb 2025", "POS purchase SHOPRITE", "-1,500.00", "10,000.00", "POS", "REF123456"},
		[]string{"05 Feb 2025", "", "Transfer from Ada", "+2,000.00", "12,000.00", "", ""},
		[]string{"Feb 2025", "", "Airtime MTN", "100.00DR", "11,900.00", "", ""},
		[]string{"09 Feb 2025", "zz", "Web purchase", "-20.00", "11,880.00", "", ""},
		[]string{"28 Feb 2025", "", "Reversal of charge", "20.00", "11,900.00", "", ""},
		[]string{"", "", "Card fee", "50.00", "abc", "", ""},
		[]string{"", "", "", "", "", "", ""},
	)

	recorder := &failureLog{}
	rows := newNormalizer(recorder).Normalize(frame)
	require.Len(t, rows, 6)

	t.Run("repaired date parses cleanly", func(t *testing.T) {
		r := rows[0]
		require.NotNil(t, r.Date)
		assert.Equal(t, day(24), *r.Date)
		assert.Equal(t, "24Feb 2025", r.RawDate)
		assert.Equal(t, "24 Feb 2025", r.DateValidation.Repaired)
		assert.Equal(t, models.CategoryNone, r.DateValidation.Category)
		assert.Equal(t, models.ConfidenceHigh, r.DateValidation.Confidence)
		require.NotNil(t, r.ValueDate)
		assert.True(t, r.Debit.Equal(decimal.NewFromInt(1500)))
		assert.True(t, r.Credit.IsZero())
		assert.True(t, r.Balance.Equal(decimal.NewFromInt(10000)))
		assert.Equal(t, models.ChannelPOS, r.Channel)
		assert.Equal(t, "REF123456", r.TransactionReference)
		assert.Empty(t, r.RowIssues.Sorted())
	})

	t.Run("signed amounts split", func(t *testing.T) {
		assert.True(t, rows[1].Credit.Equal(decimal.NewFromInt(2000)))
		assert.True(t, rows[1].Debit.IsZero())
		assert.Equal(t, models.ChannelTransfer, rows[1].Channel)

		assert.True(t, rows[2].Debit.Equal(decimal.NewFromInt(100)))
		assert.True(t, rows[2].Credit.IsZero())
		for _, r := range rows[:5] {
			assert.True(t, r.IsSingleSided(), r.RawDate)
		}
	})

	t.Run("month and year only is inferred from the table", func(t *testing.T) {
		r := rows[2]
		assert.Equal(t, models.CategoryFlagReview, r.DateValidation.Category)
		assert.Nil(t, r.DateValidation.Parsed)
		require.NotNil(t, r.Date)
		assert.Equal(t, day(9), *r.Date)
		require.NotNil(t, r.Inference)
		assert.Equal(t, models.ConfidenceHigh, r.Inference.Confidence)
		assert.True(t, r.RowIssues.Has(models.RowIssueDateInferred))
		assert.False(t, r.RowIssues.Has(models.RowIssueInvalidDate))
		assert.Equal(t, models.ChannelAirtime, r.Channel)
	})

	t.Run("bad value date", func(t *testing.T) {
		assert.True(t, rows[3].RowIssues.Has(models.RowIssueInvalidValueDate))
		assert.Nil(t, rows[3].ValueDate)
		assert.Equal(t, models.ChannelPOS, rows[3].Channel)
	})

	t.Run("empty date is critical", func(t *testing.T) {
		r := rows[5]
		assert.Nil(t, r.Date)
		assert.Nil(t, r.Inference)
		assert.Equal(t, models.CategoryFlagCritical, r.DateValidation.Category)
		assert.True(t, r.DateValidation.HasIssue(models.IssueNullDate))
		assert.True(t, r.RowIssues.Has(models.RowIssueInvalidDate))
		assert.True(t, r.RowIssues.Has(models.RowIssueInvalidBalance))
		assert.True(t, r.Credit.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, models.ChannelCharges, r.Channel)
	})

	t.Run("only non-empty failures are recorded", func(t *testing.T) {
		require.Len(t, recorder.failures, 1)
		assert.Equal(t, "Feb 2025", recorder.failures[0].Original)
	})
}

func TestNormalize_SeparateColumns(t *testing.T) {
	frame := buildFrame(
		[]string{"date", "Remarks", "debit", "credit", "Extra"},
		[]string{"05/02/2025", "ATM withdrawal", "5,000.00", "", "Ikeja"},
		[]string{"06/02/2025", "Odd row", "10.00", "5.00", ""},
		[]string{"07/02/2025", "Broken", "abc", "", ""},
	)

	rows := newNormalizer(nil).Normalize(frame)
	require.Len(t, rows, 3)

	assert.Equal(t, "ATM withdrawal Ikeja", rows[0].Description)
	assert.Equal(t, models.ChannelATM, rows[0].Channel)
	assert.True(t, rows[0].Debit.Equal(decimal.NewFromInt(5000)))
	require.NotNil(t, rows[0].Date)
	assert.Equal(t, day(5), *rows[0].Date)

	assert.True(t, rows[1].RowIssues.Has(models.RowIssueTwoSidedAmount))
	assert.True(t, rows[2].RowIssues.Has(models.RowIssueInvalidAmount))
}

func TestNormalize_EmptyFrame(t *testing.T) {
	rows := newNormalizer(nil).Normalize(models.Frame{})
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSplitSigned(t *testing.T) {
	tests := []struct {
		raw          string
		debit, credit int64
		wantErr      bool
	}{
		{raw: "-1,500", debit: 1500},
		{raw: "(40)", debit: 40},
		{raw: "300CR", credit: 300},
		{raw: "300 DR", debit: 300},
		{raw: "+12", credit: 12},
		{raw: "12", credit: 12},
		{raw: "twelve", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			debit, credit, err := SplitSigned(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, debit.Equal(decimal.NewFromInt(tt.debit)), debit.String())
			assert.True(t, credit.Equal(decimal.NewFromInt(tt.credit)), credit.String())
		})
	}
}
