package pdfsource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"pdf header", "%PDF-1.7\n...", true},
		{"json", `{"cells":[]}`, false},
		{"short file", "%P", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsPDF(writeFile(t, "in", tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := IsPDF(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestSource_Load(t *testing.T) {
	lines := []models.TextLine{
		{Page: 1, Text: "KUDA MICROFINANCE BANK"},
		{Page: 1, Text: "24/02/25 10:11:12 ₦1,000.00 ₦5,000.00 Transfer to Ada"},
	}

	t.Run("lines become a document", func(t *testing.T) {
		path := writeFile(t, "s.pdf", "%PDF-1.4")
		mockLog := logging.NewMockLogger()
		extractor := NewMockExtractor(lines, nil)

		doc, err := NewSource(extractor, mockLog).Load(path)
		require.NoError(t, err)
		assert.Equal(t, path, doc.Source)
		assert.Equal(t, lines, doc.Lines)
		assert.Empty(t, doc.Cells)
		assert.Equal(t, []string{path}, extractor.Calls)
		assert.True(t, mockLog.HasEntry("INFO", "Extracted PDF text"))
	})

	t.Run("not a pdf", func(t *testing.T) {
		extractor := NewMockExtractor(lines, nil)
		_, err := NewSource(extractor, nil).Load(writeFile(t, "s.json", "{}"))
		var formatErr *parsererror.InvalidFormatError
		assert.True(t, errors.As(err, &formatErr))
		assert.Empty(t, extractor.Calls)
	})

	t.Run("extractor failure", func(t *testing.T) {
		path := writeFile(t, "s.pdf", "%PDF-1.4")
		_, err := NewSource(NewMockExtractor(nil, errors.New("bad xref")), nil).Load(path)
		var formatErr *parsererror.InvalidFormatError
		require.True(t, errors.As(err, &formatErr))
		assert.Contains(t, formatErr.Msg, "bad xref")
	})

	t.Run("no text layer", func(t *testing.T) {
		path := writeFile(t, "s.pdf", "%PDF-1.4")
		_, err := NewSource(NewMockExtractor(nil, nil), nil).Load(path)
		var validationErr *parsererror.ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})
}

func TestLibraryExtractor_BrokenFile(t *testing.T) {
	path := writeFile(t, "broken.pdf", "%PDF-1.4\nnot really a pdf")
	_, err := NewLibraryExtractor().ExtractLines(path)
	assert.Error(t, err)
}
