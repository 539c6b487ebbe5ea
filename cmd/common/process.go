// Package common contains shared functionality for command handlers
package common

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"banklytik/statement-normalizer/internal/container"
	"banklytik/statement-normalizer/internal/export"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/pipeline"
)

// OutputFormat resolves the format from the flag value, then from the config.
func OutputFormat(c *container.Container, flag string) (export.Format, error) {
	if flag == "" {
		flag = c.GetConfig().Output.Format
	}
	return export.ParseFormat(flag)
}

// Extract loads a statement and runs it through the pipeline. A statement
// that yields no transactions is an error carrying the attempts made.
func Extract(ctx context.Context, c *container.Container, inputFile, institution string) (*pipeline.Result, error) {
	if inputFile == "" {
		return nil, fmt.Errorf("input file must be specified")
	}
	doc, err := c.LoadDocument(inputFile)
	if err != nil {
		return nil, fmt.Errorf("error loading statement: %w", err)
	}
	res := c.GetPipeline().Run(ctx, doc, pipeline.Options{Institution: institution})
	if err := res.Err(); err != nil {
		return res, fmt.Errorf("%s: %w (%d strategies tried)", filepath.Base(inputFile), err, len(res.Attempts))
	}
	return res, nil
}

// WriteRows writes rows to outputFile, or to stdout when outputFile is empty.
func WriteRows(c *container.Container, rows []models.TransactionRow, outputFile string, format export.Format, stdout io.Writer) error {
	if outputFile == "" {
		return c.GetExporter().Write(stdout, format, rows)
	}
	return c.GetExporter().WriteFile(outputFile, format, rows)
}

// ProcessFile extracts the transactions of one statement and writes them.
func ProcessFile(ctx context.Context, c *container.Container, inputFile, outputFile, institution string, format export.Format, stdout io.Writer) (*pipeline.Result, error) {
	res, err := Extract(ctx, c, inputFile, institution)
	if err != nil {
		return res, err
	}
	if err := WriteRows(c, res.Rows, outputFile, format, stdout); err != nil {
		return res, err
	}

	c.GetLogger().Info("Conversion completed successfully",
		logging.F(logging.FieldInputFile, inputFile),
		logging.F(logging.FieldStrategy, string(res.Strategy)),
		logging.F(logging.FieldCount, len(res.Rows)),
		logging.F("flagged", res.Stats.Flagged()))
	return res, nil
}
