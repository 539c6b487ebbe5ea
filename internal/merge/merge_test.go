package merge

import (
	"testing"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(tableID int, columns []string, rows ...[]string) models.Frame {
	f := models.Frame{Columns: columns}
	for _, r := range rows {
		cells := make([]models.Cell, len(r))
		for i, v := range r {
			cells[i] = models.Text(v)
		}
		f.Rows = append(f.Rows, models.FrameRow{Cells: cells, TableID: tableID, Page: tableID})
	}
	return f
}

func TestMerge_ExactOverlapPadsGaps(t *testing.T) {
	a := frame(1, []string{"date", "debit", "credit", "balance"},
		[]string{"05 Feb 2025", "1,000.00", "", "9,000.00"},
		[]string{"06 Feb 2025", "", "500.00", "9,500.00"},
		[]string{"07 Feb 2025", "200.00", "", "9,300.00"},
	)
	b := frame(2, []string{"date", "amount", "description"},
		[]string{"Trans. Date Time", "Debit/Credit Amount", "Description / Narration Reference Balance"},
		[]string{"08 Feb 2025", "-300.00", "POS purchase"},
		[]string{"09 Feb 2025", "1,200.00", "Transfer from Ada"},
	)

	mock := logging.NewMockLogger()
	merged, report := NewOrchestrator(mock).MergeWithReport([]models.Frame{a, b})

	assert.Equal(t, MethodExact, report.Method)
	assert.Equal(t, []string{"date"}, report.SharedColumns)
	assert.Equal(t, []string{"date", "debit", "credit", "balance", "amount", "description"}, merged.Columns)
	require.Equal(t, 5, merged.Len())
	assert.Equal(t, 1, report.HeaderRowsRemoved)

	// Rows from the first table have no amount or description.
	assert.False(t, merged.Value(0, "amount").Valid)
	assert.False(t, merged.Value(0, "description").Valid)
	assert.Equal(t, "1,000.00", merged.Value(0, "debit").Value)

	// Rows from the second table have no debit, credit or balance.
	assert.Equal(t, "08 Feb 2025", merged.Value(3, "date").Value)
	assert.Equal(t, "-300.00", merged.Value(3, "amount").Value)
	assert.False(t, merged.Value(3, "debit").Valid)
	assert.False(t, merged.Value(4, "balance").Valid)
	assert.Equal(t, 2, merged.Rows[4].TableID)

	assert.True(t, mock.HasEntry("INFO", "Merged tables"))
}

func TestMerge_NoCompatibleColumnsKeepsLargest(t *testing.T) {
	dates := frame(1, []string{"Posted On"},
		[]string{"05/02/2025"},
		[]string{"06/02/2025"},
	)
	text := frame(2, []string{"Memo Text"},
		[]string{"Transfer to John Doe"},
		[]string{"Airtime purchase MTN"},
		[]string{"Card maintenance fee"},
	)

	mock := logging.NewMockLogger()
	merged, report := NewOrchestrator(mock).MergeWithReport([]models.Frame{dates, text})

	assert.Equal(t, MethodFallback, report.Method)
	assert.Equal(t, text, merged)
	assert.Len(t, mock.GetEntriesByLevel("WARN"), 1)
}

func TestMerge_AlignsAgainstLargestFrame(t *testing.T) {
	small := frame(1, []string{"Txn Day", "Sum", "Extra"},
		[]string{"10/02/2025", "2,500.00", "Transfer to John Doe"},
	)
	base := frame(2, []string{"Posted", "Amount NGN"},
		[]string{"05/02/2025", "1,000.00"},
		[]string{"06/02/2025", "300.50"},
	)
	unrelated := frame(3, []string{"Notes"},
		[]string{"ok"},
		[]string{"x"},
	)

	merged, report := NewOrchestrator(nil).MergeWithReport([]models.Frame{small, base, unrelated})

	assert.Equal(t, MethodAligned, report.Method)
	assert.Equal(t, 1, report.FramesLeftOut)
	assert.Equal(t, []string{"Posted", "Amount NGN"}, merged.Columns)
	require.Equal(t, 3, merged.Len())

	// Input order is kept: the aligned small frame comes first.
	assert.Equal(t, "10/02/2025", merged.Value(0, "Posted").Value)
	assert.Equal(t, "2,500.00", merged.Value(0, "Amount NGN").Value)
	assert.Equal(t, "06/02/2025", merged.Value(2, "Posted").Value)
}

func TestMerge_TrivialInputs(t *testing.T) {
	o := NewOrchestrator(nil)

	merged, report := o.MergeWithReport(nil)
	assert.Equal(t, MethodNone, report.Method)
	assert.Empty(t, merged.Columns)
	assert.Zero(t, merged.Len())

	single := frame(1, []string{"date"}, []string{"05 Feb 2025"})
	assert.Equal(t, single, o.Merge([]models.Frame{single, {Columns: []string{"date"}}}))

	emptyOnly := []models.Frame{{Columns: []string{"a"}}, {Columns: []string{"b"}}}
	merged, report = o.MergeWithReport(emptyOnly)
	assert.Equal(t, MethodFallback, report.Method)
	assert.Equal(t, []string{"a"}, merged.Columns)
}

func TestMerge_InputsNotModified(t *testing.T) {
	a := frame(1, []string{"date", "balance"}, []string{"05 Feb 2025", "10.00"})
	b := frame(2, []string{"date", "credit"}, []string{"06 Feb 2025", "5.00"})
	before := a.Clone()

	merged := NewOrchestrator(nil).Merge([]models.Frame{a, b})
	merged.Rows[0].Cells[0] = models.Text("changed")

	assert.Equal(t, before, a)
}

func TestIsHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{"full header", []string{"Trans. Time", "Value Date", "Description", "Debit/Credit", "Balance", "Channel", "Transaction Reference"}, true},
		{"transaction", []string{"05 Feb 2025", "POS purchase", "1,000.00"}, false},
		{"few keywords", []string{"Date", "Balance"}, false},
		{"empty", []string{"", ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame(1, make([]string, len(tt.row)), tt.row)
			assert.Equal(t, tt.want, IsHeaderRow(f.Rows[0], HeaderKeywords, DefaultHeaderKeywordRatio))
		})
	}
}

func TestInferType(t *testing.T) {
	assert.Equal(t, typeDate, inferType([]string{"05 Feb 2025", "2025-02-06", "07/02/25"}))
	assert.Equal(t, typeAmount, inferType([]string{"1,000.00", "₦250.00", "(40.00)"}))
	assert.Equal(t, typeText, inferType([]string{"Transfer to John Doe", "Airtime purchase MTN"}))
	assert.Equal(t, typeUnknown, inferType([]string{"ok", "x"}))
	assert.Equal(t, typeUnknown, inferType(nil))
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("Balance", "balance"))
	assert.Equal(t, 0.8, nameSimilarity("balance", "running balance bf"))
	assert.Equal(t, 0.7, nameSimilarity("narration", "particulars"))
	assert.Equal(t, 0.6, nameSimilarity("posting date", "date of entry"))
	assert.Equal(t, 0.0, nameSimilarity("notes", ""))
}
