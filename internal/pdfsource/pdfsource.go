// Package pdfsource turns digital PDF statements into OCR documents made of
// text lines, so they can go through the same pipeline as scanned statements.
package pdfsource

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
)

var pdfMagic = []byte("%PDF-")

// Source loads PDF files through an Extractor.
type Source struct {
	extractor Extractor
	logger    logging.Logger
}

// NewSource creates a Source. A nil extractor means the library extractor.
func NewSource(extractor Extractor, logger logging.Logger) *Source {
	if extractor == nil {
		extractor = NewLibraryExtractor()
	}
	return &Source{extractor: extractor, logger: logging.OrDefault(logger)}
}

// IsPDF reports whether the file at path starts with the PDF header.
func IsPDF(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return bytes.Equal(head[:n], pdfMagic), nil
}

// Load extracts the text lines of the PDF at path. A PDF with no text layer
// is rejected: it needs OCR first.
func (s *Source) Load(path string) (models.OCRDocument, error) {
	ok, err := IsPDF(path)
	if err != nil {
		return models.OCRDocument{}, fmt.Errorf("error opening PDF: %w", err)
	}
	if !ok {
		return models.OCRDocument{}, &parsererror.InvalidFormatError{
			FilePath:       path,
			ExpectedFormat: "PDF",
			Msg:            "missing %PDF- header",
		}
	}

	lines, err := s.extractor.ExtractLines(path)
	if err != nil {
		return models.OCRDocument{}, &parsererror.InvalidFormatError{
			FilePath:       path,
			ExpectedFormat: "PDF",
			Msg:            err.Error(),
		}
	}
	if len(lines) == 0 {
		return models.OCRDocument{}, &parsererror.ValidationError{
			FilePath: path,
			Reason:   "PDF has no text layer",
		}
	}

	s.logger.Info("Extracted PDF text",
		logging.F(logging.FieldFile, path),
		logging.F("lines", len(lines)))
	return models.OCRDocument{Source: path, Lines: lines}, nil
}
