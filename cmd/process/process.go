// Package process handles the conversion of a single statement
package process

import (
	"fmt"

	"banklytik/statement-normalizer/cmd/common"
	"banklytik/statement-normalizer/cmd/root"

	"github.com/spf13/cobra"
)

// Cmd represents the process command
var Cmd = &cobra.Command{
	Use:   "process",
	Short: "Normalize one OCR'd bank statement",
	Long: `Normalize one bank statement into canonical transactions.

The input is an OCR JSON dump (native cells/lines or Textract blocks) or a digital PDF.
Strategies are tried in order: institution parser, AI column mapping, structural
merge and the heuristic line cleaner. The first one producing transactions wins.

Example:
  stmtnorm process -i statement.json -o transactions.csv
  stmtnorm process -i kuda.pdf --institution KUDA --format xlsx -o kuda.xlsx`,
	RunE: processFunc,
}

func processFunc(cmd *cobra.Command, args []string) error {
	c := root.GetContainer()
	if c == nil {
		return fmt.Errorf("container not initialized")
	}
	format, err := common.OutputFormat(c, root.SharedFlags.Format)
	if err != nil {
		return err
	}
	_, err = common.ProcessFile(cmd.Context(), c, root.SharedFlags.Input, root.SharedFlags.Output,
		root.Institution(), format, cmd.OutOrStdout())
	return err
}
