// Package batch runs every statement in a directory through the pipeline and
// writes one normalized file per statement.
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"banklytik/statement-normalizer/internal/dateutils"
	"banklytik/statement-normalizer/internal/export"
	"banklytik/statement-normalizer/internal/fileutils"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/pipeline"
)

// InputExtensions are the statement files picked up from an input directory.
var InputExtensions = []string{".json", ".pdf"}

// DateRange represents a date range with start and end dates
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String returns the date range in the format "YYYY-MM-DD_YYYY-MM-DD"
func (dr DateRange) String() string {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s_%s",
		dr.Start.Format("2006-01-02"),
		dr.End.Format("2006-01-02"))
}

// Merge combines this date range with another, returning the overall range
func (dr DateRange) Merge(other DateRange) DateRange {
	start := dr.Start
	end := dr.End

	if dr.Start.IsZero() {
		start = other.Start
	} else if !other.Start.IsZero() && other.Start.Before(start) {
		start = other.Start
	}

	if dr.End.IsZero() {
		end = other.End
	} else if !other.End.IsZero() && other.End.After(end) {
		end = other.End
	}

	return DateRange{Start: start, End: end}
}

// RangeOf returns the span of the dated rows. Rows without a date are ignored.
func RangeOf(rows []models.TransactionRow) DateRange {
	var dr DateRange
	for _, r := range rows {
		if r.Date != nil {
			dr = dr.Merge(DateRange{Start: *r.Date, End: *r.Date})
		}
	}
	return dr
}

// DocumentLoader reads a statement file.
type DocumentLoader interface {
	LoadDocument(path string) (models.OCRDocument, error)
}

// Runner extracts transactions from a document.
type Runner interface {
	Run(ctx context.Context, doc models.OCRDocument, opts pipeline.Options) *pipeline.Result
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Input       string
	Output      string
	Institution string
	Strategy    pipeline.Strategy
	Rows        int
	Flagged     int
	Duplicates  int
	DateRange   DateRange
	Err         error
}

// Summary aggregates a batch run.
type Summary struct {
	Files     []FileResult
	Succeeded int
	Failed    int
	DateRange DateRange
}

// Processor handles the conversion of a directory of statements.
type Processor struct {
	loader DocumentLoader
	runner Runner
	writer *export.Writer
	format export.Format
	logger logging.Logger
}

// NewProcessor creates a Processor writing files in format.
func NewProcessor(loader DocumentLoader, runner Runner, writer *export.Writer, format export.Format, logger logging.Logger) *Processor {
	return &Processor{
		loader: loader,
		runner: runner,
		writer: writer,
		format: format,
		logger: logging.OrDefault(logger),
	}
}

// ProcessDir converts every statement under inputDir into outputDir. A file
// that fails is recorded and the batch continues.
func (p *Processor) ProcessDir(ctx context.Context, inputDir, outputDir string, opts pipeline.Options) (Summary, error) {
	files, err := fileutils.ListFilesWithExtension(inputDir, InputExtensions...)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read input directory: %w", err)
	}
	if err := fileutils.EnsureDirectoryExists(outputDir); err != nil {
		return Summary{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	var summary Summary
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := p.ProcessFile(ctx, file, outputDir, opts)
		summary.Files = append(summary.Files, res)
		if res.Err != nil {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		summary.DateRange = summary.DateRange.Merge(res.DateRange)
	}

	p.logger.Info("Batch processing completed",
		logging.F(logging.FieldCount, len(files)),
		logging.F("succeeded", summary.Succeeded),
		logging.F("failed", summary.Failed))
	return summary, nil
}

// ProcessFile converts one statement into outputDir.
func (p *Processor) ProcessFile(ctx context.Context, input, outputDir string, opts pipeline.Options) FileResult {
	res := FileResult{Input: input}
	logger := p.logger.WithField(logging.FieldInputFile, filepath.Base(input))

	doc, err := p.loader.LoadDocument(input)
	if err != nil {
		logger.WithError(err).Error("Failed to load statement")
		res.Err = err
		return res
	}

	out := p.runner.Run(ctx, doc, opts)
	res.Institution = out.Institution
	res.Strategy = out.Strategy
	if err := out.Err(); err != nil {
		logger.WithError(err).Warn("Statement produced no transactions")
		res.Err = err
		return res
	}

	res.Rows = len(out.Rows)
	res.Flagged = out.Stats.Flagged()
	res.DateRange = RangeOf(out.Rows)
	res.Duplicates = p.detectAndLogDuplicates(out.Rows, input)
	res.Output = filepath.Join(outputDir, OutputFilename(input, res.DateRange, p.format))

	if err := p.writer.WriteFile(res.Output, p.format, out.Rows); err != nil {
		res.Err = err
	}
	return res
}

// detectAndLogDuplicates identifies potential duplicate transactions and logs warnings.
// Duplicates are kept; statements legitimately repeat small identical movements.
func (p *Processor) detectAndLogDuplicates(rows []models.TransactionRow, input string) int {
	duplicateCount := 0
	for i := 0; i < len(rows)-1; i++ {
		for j := i + 1; j < len(rows); j++ {
			if arePotentialDuplicates(rows[i], rows[j]) {
				duplicateCount++
				p.logger.Debug("Potential duplicate transaction",
					logging.F(logging.FieldInputFile, filepath.Base(input)),
					logging.F(logging.FieldRow, i),
					logging.F("amount", rows[i].Amount().String()))
				break
			}
		}
	}
	if duplicateCount > 0 {
		p.logger.Warn("Found potential duplicate transactions",
			logging.F(logging.FieldCount, duplicateCount),
			logging.F(logging.FieldInputFile, filepath.Base(input)))
	}
	return duplicateCount
}

// arePotentialDuplicates reports same date, same movement and same description.
func arePotentialDuplicates(a, b models.TransactionRow) bool {
	if a.Date == nil || b.Date == nil || !dateutils.SameDay(*a.Date, *b.Date) {
		return false
	}
	if !a.Amount().Equal(b.Amount()) || !a.Balance.Equal(b.Balance) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a.Description), strings.TrimSpace(b.Description))
}

// OutputFilename creates the output name for a statement:
// {input base}_{start}_{end}{ext}, or {input base}{ext} without dated rows.
func OutputFilename(input string, dateRange DateRange, format export.Format) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name := Sanitize(base)
	if r := dateRange.String(); r != "" {
		name += "_" + r
	}
	return name + format.Extension()
}

// Sanitize makes a name filesystem-safe. Path traversal sequences are removed.
func Sanitize(name string) string {
	sanitized := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")

	var result strings.Builder
	for _, r := range sanitized {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	sanitized = result.String()

	for strings.Contains(sanitized, "..") {
		sanitized = strings.ReplaceAll(sanitized, "..", "_")
	}
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_.")
	if sanitized == "" {
		sanitized = "statement"
	}
	return sanitized
}
