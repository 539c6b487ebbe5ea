// Package models provides the data structures used throughout the application.
package models

// RawCell is a single OCR fragment positioned inside a table region.
// Row and Col are 1-based, as emitted by the document-analysis service.
type RawCell struct {
	TableID int    `json:"table_id"`
	Page    int    `json:"page"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Text    string `json:"text"`
}

// TextLine is a plain line of recognized text, used when table detection is poor.
type TextLine struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// OCRDocument is the complete OCR output for one statement.
type OCRDocument struct {
	Source string     `json:"source,omitempty"`
	Cells  []RawCell  `json:"cells"`
	Lines  []TextLine `json:"lines"`
}

// IsEmpty reports whether the document carries neither cells nor lines.
func (d OCRDocument) IsEmpty() bool {
	return len(d.Cells) == 0 && len(d.Lines) == 0
}

// LineTexts returns the text of every line, in document order.
func (d OCRDocument) LineTexts() []string {
	texts := make([]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		texts = append(texts, l.Text)
	}
	return texts
}

// ReconstructedTable is a dense matrix rebuilt from the cells of one table region.
type ReconstructedTable struct {
	TableID   int        `json:"table_id"`
	Page      int        `json:"page"`
	Matrix    [][]string `json:"matrix"`
	HeaderRow []string   `json:"header_row,omitempty"`
}

// RowCount returns the number of matrix rows.
func (t ReconstructedTable) RowCount() int {
	return len(t.Matrix)
}

// ColumnCount returns the width of the widest matrix row.
func (t ReconstructedTable) ColumnCount() int {
	width := 0
	for _, row := range t.Matrix {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}
