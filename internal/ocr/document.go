// Package ocr loads OCR output for a statement: either the native cells/lines
// JSON layout or a Textract-style block dump.
package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/parsererror"
)

// Format names the layout a document was decoded from.
type Format string

const (
	FormatNative   Format = "native"
	FormatTextract Format = "textract"
)

const expectedLayout = `{"cells":[...],"lines":[...]} or {"Blocks":[...]}`

// Decode reads an OCR document from r, detecting its layout.
func Decode(r io.Reader) (models.OCRDocument, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.OCRDocument{}, "", fmt.Errorf("error reading OCR input: %w", err)
	}
	return decode(data, "")
}

func decode(data []byte, path string) (models.OCRDocument, Format, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return models.OCRDocument{}, "", &parsererror.InvalidFormatError{
			FilePath: path, ExpectedFormat: expectedLayout, Msg: "empty input",
		}
	}

	if trimmed[0] == '[' {
		var blocks []Block
		if err := json.Unmarshal(trimmed, &blocks); err != nil {
			return models.OCRDocument{}, "", invalid(path, trimmed, err)
		}
		return FromBlocks(blocks), FormatTextract, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return models.OCRDocument{}, "", invalid(path, trimmed, err)
	}
	if _, ok := probe["Blocks"]; ok {
		var dump struct {
			Blocks []Block `json:"Blocks"`
		}
		if err := json.Unmarshal(trimmed, &dump); err != nil {
			return models.OCRDocument{}, "", invalid(path, trimmed, err)
		}
		return FromBlocks(dump.Blocks), FormatTextract, nil
	}
	_, hasCells := probe["cells"]
	_, hasLines := probe["lines"]
	if !hasCells && !hasLines {
		return models.OCRDocument{}, "", &parsererror.InvalidFormatError{
			FilePath:             path,
			ExpectedFormat:       expectedLayout,
			ActualContentSnippet: snippet(trimmed),
			Msg:                  "no cells, lines or Blocks key",
		}
	}
	var doc models.OCRDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return models.OCRDocument{}, "", invalid(path, trimmed, err)
	}
	return doc, FormatNative, nil
}

func invalid(path string, data []byte, err error) error {
	return &parsererror.InvalidFormatError{
		FilePath:             path,
		ExpectedFormat:       expectedLayout,
		ActualContentSnippet: snippet(data),
		Msg:                  err.Error(),
	}
}

func snippet(data []byte) string {
	const snippetLen = 80
	if len(data) > snippetLen {
		return string(data[:snippetLen])
	}
	return string(data)
}

// Loader reads OCR documents from disk.
type Loader struct {
	maxPages int
	logger   logging.Logger
}

// NewLoader creates a Loader. maxPages > 0 keeps only the first maxPages pages.
func NewLoader(maxPages int, logger logging.Logger) *Loader {
	return &Loader{maxPages: maxPages, logger: logging.OrDefault(logger)}
}

// Load reads and decodes the document at path. Source is set to path.
func (l *Loader) Load(path string) (models.OCRDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.OCRDocument{}, fmt.Errorf("error reading OCR file: %w", err)
	}
	doc, format, err := decode(data, path)
	if err != nil {
		return models.OCRDocument{}, err
	}
	doc.Source = path
	if l.maxPages > 0 {
		doc = SamplePages(doc, l.maxPages)
	}
	l.logger.Info("Loaded OCR document",
		logging.F(logging.FieldFile, path),
		logging.F("format", string(format)),
		logging.F("cells", len(doc.Cells)),
		logging.F("lines", len(doc.Lines)))
	return doc, nil
}

// Pages returns the distinct page numbers of a document in ascending order.
func Pages(doc models.OCRDocument) []int {
	seen := make(map[int]bool)
	var pages []int
	add := func(p int) {
		if !seen[p] {
			seen[p] = true
			pages = append(pages, p)
		}
	}
	for _, c := range doc.Cells {
		add(c.Page)
	}
	for _, l := range doc.Lines {
		add(l.Page)
	}
	sort.Ints(pages)
	return pages
}

// SamplePages keeps the cells and lines of the first maxPages pages.
func SamplePages(doc models.OCRDocument, maxPages int) models.OCRDocument {
	pages := Pages(doc)
	if maxPages <= 0 || len(pages) <= maxPages {
		return doc
	}
	keep := make(map[int]bool, maxPages)
	for _, p := range pages[:maxPages] {
		keep[p] = true
	}
	out := models.OCRDocument{Source: doc.Source}
	for _, c := range doc.Cells {
		if keep[c.Page] {
			out.Cells = append(out.Cells, c)
		}
	}
	for _, l := range doc.Lines {
		if keep[l.Page] {
			out.Lines = append(out.Lines, l)
		}
	}
	return out
}
