// Package review drives the date review workflow from the command line.
package review

import (
	"fmt"

	"banklytik/statement-normalizer/cmd/common"
	"banklytik/statement-normalizer/cmd/root"
	"banklytik/statement-normalizer/internal/container"
	"banklytik/statement-normalizer/internal/learning"
	"banklytik/statement-normalizer/internal/logging"
	"banklytik/statement-normalizer/internal/review"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// sessionFile is the YAML file holding the review session.
	sessionFile string
	// rowIndex, action, correctedDate and notes describe one decision.
	rowIndex      int
	action        string
	correctedDate string
	notes         string
)

// Cmd represents the review command
var Cmd = &cobra.Command{
	Use:   "review",
	Short: "Review flagged transaction dates",
	Long: `Review the transaction dates the validator flagged.

start writes a YAML session listing every flagged row; decisions are recorded
with decide or by editing the file. apply re-extracts the statement, applies
the decisions, feeds them into the review history and writes the corrected rows.

Example:
  stmtnorm review start -i statement.json --session review.yaml
  stmtnorm review decide --session review.yaml --row 3 --action modify --date 2025-01-15
  stmtnorm review apply --session review.yaml -o corrected.csv`,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a review session for a statement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		res, err := common.Extract(cmd.Context(), c, root.SharedFlags.Input, root.Institution())
		if err != nil {
			return err
		}
		s := c.GetReviewWorkflow().Start(res.Rows)
		s.Source = root.SharedFlags.Input

		path := sessionFile
		if path == "" {
			path = s.ID + ".yaml"
		}
		if err := review.Save(path, s); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s: %d of %d rows need review, saved to %s\n",
			s.ID, len(s.Candidates), len(res.Rows), path)
		return nil
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Record a decision on one flagged row",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		s, err := review.Load(sessionFile)
		if err != nil {
			return err
		}
		a, err := review.ParseAction(action)
		if err != nil {
			return err
		}
		if err := c.GetReviewWorkflow().ApplyDecision(s, rowIndex, a, correctedDate, notes); err != nil {
			return err
		}
		return review.Save(sessionFile, s)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a session's decisions and write the corrected rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		s, err := review.Load(sessionFile)
		if err != nil {
			return err
		}
		input := root.SharedFlags.Input
		if input == "" {
			input = s.Source
		}
		format, err := common.OutputFormat(c, root.SharedFlags.Format)
		if err != nil {
			return err
		}

		res, err := common.Extract(cmd.Context(), c, input, root.Institution())
		if err != nil {
			return err
		}
		rows, changed := c.GetReviewWorkflow().ApplyApproved(res.Rows, s)
		if err := common.WriteRows(c, rows, root.SharedFlags.Output, format, cmd.OutOrStdout()); err != nil {
			return err
		}

		recorded := review.RecordOutcomes(s, c.GetHistory())
		historyFile := c.GetConfig().Learning.HistoryFile
		if err := learning.SaveHistory(historyFile, c.GetHistory()); err != nil {
			return fmt.Errorf("error saving review history: %w", err)
		}
		c.GetLogger().Info("Applied review session",
			logging.F(logging.FieldSessionID, s.ID),
			logging.F("changed", changed),
			logging.F("recorded", recorded),
			logging.F(logging.FieldFile, historyFile))
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the progress of a review session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := review.Load(sessionFile)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(review.Summarize(s))
	},
}

func init() {
	for _, c := range []*cobra.Command{startCmd, decideCmd, applyCmd, summaryCmd} {
		c.Flags().StringVar(&sessionFile, "session", "", "Review session file (YAML)")
	}
	for _, c := range []*cobra.Command{decideCmd, applyCmd, summaryCmd} {
		_ = c.MarkFlagRequired("session")
	}

	decideCmd.Flags().IntVar(&rowIndex, "row", -1, "Row index of the candidate")
	decideCmd.Flags().StringVar(&action, "action", "", "approve, reject, modify or skip")
	decideCmd.Flags().StringVar(&correctedDate, "date", "", "Corrected date text (modify only)")
	decideCmd.Flags().StringVar(&notes, "notes", "", "Reviewer notes")
	_ = decideCmd.MarkFlagRequired("row")
	_ = decideCmd.MarkFlagRequired("action")

	Cmd.AddCommand(startCmd, decideCmd, applyCmd, summaryCmd)
}

func requireContainer() (*container.Container, error) {
	c := root.GetContainer()
	if c == nil {
		return nil, fmt.Errorf("container not initialized")
	}
	return c, nil
}
