package models

// ProcessingStats summarizes the date outcomes of one run.
type ProcessingStats struct {
	TotalProcessed int              `json:"total_processed" yaml:"total_processed"`
	Categories     map[Category]int `json:"categories" yaml:"categories"`
	Inferred       int              `json:"inferred" yaml:"inferred"`
}

// NewProcessingStats counts the validation categories and inferred dates of rows.
func NewProcessingStats(rows []TransactionRow) ProcessingStats {
	s := ProcessingStats{Categories: make(map[Category]int)}
	for _, r := range rows {
		s.TotalProcessed++
		category := r.DateValidation.Category
		if category == "" {
			category = CategoryNone
		}
		s.Categories[category]++
		if r.Inference != nil {
			s.Inferred++
		}
	}
	return s
}

// Flagged returns the number of rows that need review or are critical.
func (s ProcessingStats) Flagged() int {
	return s.Categories[CategoryFlagReview] + s.Categories[CategoryFlagCritical]
}
