// Package export writes normalized transactions as CSV, XLSX or JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"banklytik/statement-normalizer/internal/dateutils"
	"banklytik/statement-normalizer/internal/fileutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Extension returns the file extension for the format, with the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// SheetName is the worksheet used for XLSX output.
const SheetName = "Transactions"

// Record is the flat export shape of a transaction row.
type Record struct {
	Date                 string `csv:"date" json:"date"`
	ValueDate            string `csv:"value_date" json:"value_date"`
	Description          string `csv:"description" json:"description"`
	Debit                string `csv:"debit" json:"debit"`
	Credit               string `csv:"credit" json:"credit"`
	Balance              string `csv:"balance" json:"balance"`
	Channel              string `csv:"channel" json:"channel"`
	TransactionReference string `csv:"transaction_reference" json:"transaction_reference"`
	RawDate              string `csv:"raw_date" json:"raw_date"`
	DateCategory         string `csv:"date_category" json:"date_category"`
	DateConfidence       string `csv:"date_confidence" json:"date_confidence"`
	DateIssues           string `csv:"date_issues" json:"date_issues"`
	DateInferred         bool   `csv:"date_inferred" json:"date_inferred"`
	InferenceConfidence  string `csv:"inference_confidence" json:"inference_confidence,omitempty"`
	RowIssues            string `csv:"row_issues" json:"row_issues"`
	ReviewStatus         string `csv:"review_status" json:"review_status,omitempty"`
	TableID              int    `csv:"table_id" json:"table_id"`
	Page                 int    `csv:"page" json:"page"`
}

// Columns lists the export column names in output order.
var Columns = []string{
	"date", "value_date", "description", "debit", "credit", "balance", "channel",
	"transaction_reference", "raw_date", "date_category", "date_confidence", "date_issues",
	"date_inferred", "inference_confidence", "row_issues", "review_status", "table_id", "page",
}

func (r Record) values() []interface{} {
	return []interface{}{
		r.Date, r.ValueDate, r.Description, amountCell(r.Debit), amountCell(r.Credit), amountCell(r.Balance),
		r.Channel, r.TransactionReference, r.RawDate, r.DateCategory, r.DateConfidence, r.DateIssues,
		r.DateInferred, r.InferenceConfidence, r.RowIssues, r.ReviewStatus, r.TableID, r.Page,
	}
}

// amountCell keeps XLSX amounts numeric when they parse.
func amountCell(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ToRecords flattens rows for export. Amounts have two decimals and dates
// are ISO formatted.
func ToRecords(rows []models.TransactionRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{
			Date:                 dateutils.FormatOptional(row.Date, dateutils.DateLayoutISO),
			ValueDate:            dateutils.FormatOptional(row.ValueDate, dateutils.DateLayoutISO),
			Description:          row.Description,
			Debit:                row.Debit.StringFixed(2),
			Credit:               row.Credit.StringFixed(2),
			Balance:              row.Balance.StringFixed(2),
			Channel:              string(row.Channel),
			TransactionReference: row.TransactionReference,
			RawDate:              row.RawDate,
			DateCategory:         string(row.DateValidation.Category),
			DateConfidence:       string(row.DateValidation.Confidence),
			DateIssues:           strings.Join(row.DateValidation.IssueStrings(), "|"),
			DateInferred:         row.Inference != nil,
			RowIssues:            row.RowIssues.String(),
			ReviewStatus:         string(row.Review),
			TableID:              row.TableID,
			Page:                 row.Page,
		}
		if row.Inference != nil {
			rec.InferenceConfidence = string(row.Inference.Confidence)
		}
		out = append(out, rec)
	}
	return out
}

// Writer encodes rows in any supported format.
type Writer struct {
	delimiter rune
	logger    logging.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithDelimiter sets the CSV field separator.
func WithDelimiter(d rune) Option {
	return func(w *Writer) {
		if d != 0 {
			w.delimiter = d
		}
	}
}

// NewWriter creates a Writer using commas by default.
func NewWriter(logger logging.Logger, opts ...Option) *Writer {
	w := &Writer{delimiter: ',', logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write encodes rows to out.
func (w *Writer) Write(out io.Writer, format Format, rows []models.TransactionRow) error {
	records := ToRecords(rows)
	switch format {
	case FormatCSV:
		return w.writeCSV(out, records)
	case FormatXLSX:
		return writeXLSX(out, records)
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// WriteFile encodes rows and replaces path atomically.
func (w *Writer) WriteFile(path string, format Format, rows []models.TransactionRow) error {
	var buf bytes.Buffer
	if err := w.Write(&buf, format, rows); err != nil {
		w.logger.WithError(err).Error("Failed to encode transactions",
			logging.F(logging.FieldOutputFile, path))
		return err
	}
	if err := fileutils.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	w.logger.Info("Wrote transactions",
		logging.F(logging.FieldOutputFile, path),
		logging.F("format", string(format)),
		logging.F(logging.FieldCount, len(rows)))
	return nil
}

func (w *Writer) writeCSV(out io.Writer, records []Record) error {
	cw := csv.NewWriter(out)
	cw.Comma = w.delimiter
	if len(records) == 0 {
		if err := cw.Write(Columns); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}
	if err := gocsv.MarshalCSV(records, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

// ReadCSV decodes records written by a CSV Writer with the same delimiter.
func ReadCSV(in io.Reader, delimiter rune) ([]Record, error) {
	cr := csv.NewReader(in)
	cr.Comma = delimiter
	var records []Record
	if err := gocsv.UnmarshalCSV(cr, &records); err != nil {
		return nil, fmt.Errorf("error parsing CSV data: %w", err)
	}
	return records, nil
}

func writeXLSX(out io.Writer, records []Record) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := rec.values()
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}
	return f.Write(out)
}
