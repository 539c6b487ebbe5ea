package grid

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"banklytik/statement-normalizer/internal/currencyutils"
	"banklytik/statement-normalizer/internal/models"
)

// DefaultMinScore is the score a table needs to count as transaction-like.
const DefaultMinScore = 40

var (
	transactionKeywords = []string{
		"transfer", "pos", "atm", "airtime", "payment", "deposit",
		"withdrawal", "charge", "fee", "bill", "purchase", "debit",
		"credit", "balance", "transaction", "amount", "date", "description",
	}
	headerIndicators = []string{
		"date", "time", "description", "desc", "particulars",
		"debit", "credit", "amount", "balance", "transaction",
		"reference", "ref", "channel", "type",
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
		regexp.MustCompile(`(?i)\d{1,2}\s+[a-z]{3}\s+\d{4}`),
		regexp.MustCompile(`(?i)[a-z]{3}\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	}
)

// TableScore rates how likely a table is to hold transactions, from 0 to 100.
type TableScore struct {
	TableID    int
	Page       int
	Score      float64
	Confidence models.Confidence
	Reasons    []string
	Breakdown  map[string]float64
}

// ScoreTable rates one table on its size, transaction keywords, amount and
// date density, row consistency and header row.
func ScoreTable(t models.ReconstructedTable) TableScore {
	s := TableScore{TableID: t.TableID, Page: t.Page, Confidence: models.ConfidenceLow}
	if t.RowCount() == 0 {
		s.Reasons = []string{"empty table"}
		return s
	}

	var text []string
	amounts, dates := 0, 0
	for _, row := range t.Matrix {
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			text = append(text, strings.ToLower(cell))
			if currencyutils.LooksLikeAmount(cell) {
				amounts++
			}
			for _, p := range datePatterns {
				if p.MatchString(cell) {
					dates++
					break
				}
			}
		}
	}
	all := strings.Join(text, " ")

	var found []string
	for _, kw := range transactionKeywords {
		if strings.Contains(all, kw) {
			found = append(found, kw)
		}
	}

	s.Breakdown = map[string]float64{
		"rows":        min(float64(t.RowCount())/50*10, 10),
		"columns":     min(float64(t.ColumnCount())/10*10, 10),
		"keywords":    min(float64(2*len(found)), 20),
		"amounts":     min(float64(amounts), 20),
		"dates":       min(1.5*float64(dates), 15),
		"consistency": consistency(t.Matrix),
		"header":      headerScore(t.Matrix[0]),
	}
	for _, v := range s.Breakdown {
		s.Score += v
	}
	s.Score = min(s.Score, 100)

	switch {
	case s.Score >= 70:
		s.Confidence = models.ConfidenceHigh
	case s.Score >= DefaultMinScore:
		s.Confidence = models.ConfidenceMedium
	}

	if len(found) > 0 {
		s.Reasons = append(s.Reasons, "keywords: "+strings.Join(found, ", "))
	}
	if amounts > 0 {
		s.Reasons = append(s.Reasons, fmt.Sprintf("%d amount cells", amounts))
	}
	if dates > 0 {
		s.Reasons = append(s.Reasons, fmt.Sprintf("%d date cells", dates))
	}
	if s.Breakdown["consistency"] > 5 {
		s.Reasons = append(s.Reasons, "consistent row structure")
	}
	if s.Breakdown["header"] > 5 {
		s.Reasons = append(s.Reasons, "header row detected")
	}
	return s
}

// consistency compares the number of filled cells per row.
func consistency(matrix [][]string) float64 {
	if len(matrix) < 2 {
		return 0
	}
	lo, hi := -1, 0
	for _, row := range matrix {
		n := 0
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				n++
			}
		}
		if lo < 0 || n < lo {
			lo = n
		}
		hi = max(hi, n)
	}
	switch spread := hi - lo; {
	case spread == 0:
		return 10
	case spread <= 2:
		return 7
	case spread <= 4:
		return 4
	default:
		return 1
	}
}

func headerScore(first []string) float64 {
	text := strings.ToLower(strings.Join(first, " "))
	matches := 0
	for _, ind := range headerIndicators {
		if strings.Contains(text, ind) {
			matches++
		}
	}
	switch {
	case matches >= 3:
		return 15
	case matches == 2:
		return 10
	case matches == 1:
		return 5
	default:
		return 0
	}
}

// ByLikelihood returns the tables ordered best first. Ties keep document order.
func ByLikelihood(tables []models.ReconstructedTable) []models.ReconstructedTable {
	type scored struct {
		table models.ReconstructedTable
		score float64
	}
	all := make([]scored, len(tables))
	for i, t := range tables {
		all[i] = scored{t, ScoreTable(t).Score}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	out := make([]models.ReconstructedTable, len(all))
	for i, s := range all {
		out[i] = s.table
	}
	return out
}

// Select keeps the tables scoring at least minScore, in document order, and
// returns the dropped scores. When no table reaches minScore all are kept.
func Select(tables []models.ReconstructedTable, minScore float64) ([]models.ReconstructedTable, []TableScore) {
	var kept []models.ReconstructedTable
	var dropped []TableScore
	for _, t := range tables {
		s := ScoreTable(t)
		if s.Score >= minScore {
			kept = append(kept, t)
		} else {
			dropped = append(dropped, s)
		}
	}
	if len(kept) == 0 {
		return tables, nil
	}
	return kept, dropped
}
