package pdfsource

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"banklytik/statement-normalizer/internal/models"
)

// Extractor pulls text lines out of a PDF file.
type Extractor interface {
	ExtractLines(path string) ([]models.TextLine, error)
}

// LibraryExtractor reads digital PDFs with the ledongthuc/pdf reader, one
// line per text row.
type LibraryExtractor struct{}

// NewLibraryExtractor creates a LibraryExtractor.
func NewLibraryExtractor() *LibraryExtractor {
	return &LibraryExtractor{}
}

// ExtractLines returns the non-blank text rows of every page. The reader
// panics on some malformed files; that is reported as an error.
func (e *LibraryExtractor) ExtractLines(path string) (lines []models.TextLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("pdf reader failed: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if text := strings.TrimSpace(strings.Join(parts, " ")); text != "" {
				lines = append(lines, models.TextLine{Page: i, Text: text})
			}
		}
	}
	return lines, nil
}

// MockExtractor returns canned lines, for tests.
type MockExtractor struct {
	Lines []models.TextLine
	Err   error
	Calls []string
}

// NewMockExtractor creates a MockExtractor.
func NewMockExtractor(lines []models.TextLine, err error) *MockExtractor {
	return &MockExtractor{Lines: lines, Err: err}
}

// ExtractLines records the path and returns the canned result.
func (m *MockExtractor) ExtractLines(path string) ([]models.TextLine, error) {
	m.Calls = append(m.Calls, path)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Lines, nil
}
