// Package batch handles batch processing of files
package batch

import (
	"fmt"
	"path/filepath"

	"banklytik/statement-normalizer/cmd/common"
	"banklytik/statement-normalizer/cmd/root"
	"banklytik/statement-normalizer/internal/batch"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/pipeline"

	"github.com/spf13/cobra"
)

// Cmd represents the batch command
var Cmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch process statements from a directory",
	Long: `Batch process statements from an input directory and write them to another directory.

Every OCR JSON dump and PDF in the input directory is normalized independently,
with one rule snapshot for the whole batch. Output files are named after the
input and the date range of its transactions. A statement that fails does not
stop the batch.

Example:
  stmtnorm batch -i statements/ -o normalized/`,
	RunE: batchFunc,
}

func init() {
	// Override the usage text for the input/output flags in batch context
	Cmd.SetUsageTemplate(`Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags (for batch, -i/-o refer to directories):
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}
`)
}

func batchFunc(cmd *cobra.Command, args []string) error {
	inputDir := root.SharedFlags.Input
	outputDir := root.SharedFlags.Output
	if inputDir == "" || outputDir == "" {
		return fmt.Errorf("input and output directories must be specified")
	}

	c := root.GetContainer()
	if c == nil {
		return fmt.Errorf("container not initialized")
	}
	format, err := common.OutputFormat(c, root.SharedFlags.Format)
	if err != nil {
		return err
	}

	logger := c.GetLogger()
	processor := batch.NewProcessor(c, c.GetPipeline(), c.GetExporter(), format, logger)
	summary, err := processor.ProcessDir(cmd.Context(), inputDir, outputDir,
		pipeline.Options{Institution: root.Institution()})
	if err != nil {
		return fmt.Errorf("error during batch processing: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, f := range summary.Files {
		if f.Err != nil {
			fmt.Fprintf(out, "FAILED  %s: %v\n", filepath.Base(f.Input), f.Err)
			continue
		}
		fmt.Fprintf(out, "OK      %s -> %s (%d rows, %d flagged, %s)\n",
			filepath.Base(f.Input), filepath.Base(f.Output), f.Rows, f.Flagged, f.Strategy)
	}
	fmt.Fprintf(out, "%d succeeded, %d failed\n", summary.Succeeded, summary.Failed)

	if summary.Succeeded == 0 && summary.Failed > 0 {
		return fmt.Errorf("no statement could be processed")
	}
	logger.Debug("Batch command finished", logging.F(logging.FieldCount, len(summary.Files)))
	return nil
}
