// Package rules manages the date correction rules and mines the learning log.
package rules

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"banklytik/statement-normalizer/cmd/root"
	"banklytik/statement-normalizer/internal/container"
	"banklytik/statement-normalizer/internal/learning"
	"banklytik/statement-normalizer/internal/models"
	"banklytik/statement-normalizer/internal/store"

	"github.com/spf13/cobra"
)

var (
	pattern  string
	replace  string
	detect   bool
	category string
	title    string
	limit    int
)

// Cmd represents the rules command
var Cmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage date correction rules",
	Long: `Manage the correction rules used to repair OCR-damaged dates.

Every change snapshots the active rule file first, so any earlier state can be
restored with rollback. Changes take effect on the next command run.`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active correction rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		defs, err := c.GetRuleStore().Definitions()
		if err != nil {
			return err
		}
		printRules(cmd.OutOrStdout(), defs)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add one correction rule",
	Long: `Add one correction rule. The pattern is a regular expression; the replacement
may use $1 or \1 group references. Use --detect for a detection-only garbage rule.

Example:
  stmtnorm rules add --pattern '(\d{1,2})([A-Za-z]{3})' --replace '$1 $2' --category spacing --title 'split day and month'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		rule := models.CorrectionRule{
			Pattern:  pattern,
			Category: models.RuleCategory(strings.ToLower(category)),
			Title:    title,
		}
		if !detect {
			rule.Replace = models.StringPtr(replace)
		}
		return appendRules(cmd, c, []models.CorrectionRule{rule})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import candidate rules from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		candidates, err := store.ReadRules(args[0])
		if err != nil {
			return err
		}
		return appendRules(cmd, c, candidates)
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List rule file snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		versions, err := c.GetRuleStore().Versions()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(versions) == 0 {
			fmt.Fprintln(out, "No snapshots")
			return nil
		}
		for _, v := range versions {
			fmt.Fprintf(out, "v%d\t%s\n", v, c.GetRuleStore().VersionPath(v))
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <version>",
	Short: "Restore a rule file snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimPrefix(args[0], "v"))
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := c.GetRuleStore().Rollback(cmd.Context(), n); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored rules from v%d\n", n)
		return nil
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Report recurring unparseable date patterns",
	Long: `Group the dates the repair engine could not parse by pattern signature,
most frequent first. The report is a starting point for writing new rules.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		entries, err := c.GetFailureLog().Entries()
		if err != nil {
			return err
		}
		reports := learning.MineLog(entries)
		out := cmd.OutOrStdout()
		if len(reports) == 0 {
			fmt.Fprintln(out, "No failures recorded")
			return nil
		}
		for i, r := range reports {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Fprintf(out, "%4d  %s\n", r.Count, r.Signature)
			fmt.Fprintf(out, "      examples: %s\n", strings.Join(r.Examples, " | "))
			fmt.Fprintf(out, "      reasons:  %s\n", strings.Join(r.Reasons, "; "))
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&pattern, "pattern", "", "Regular expression matched against the date text")
	addCmd.Flags().StringVar(&replace, "replace", "", "Replacement template")
	addCmd.Flags().BoolVar(&detect, "detect", false, "Detection-only rule without a replacement")
	addCmd.Flags().StringVar(&category, "category", string(models.RuleCategoryOther), "Rule category: spacing, merge, time, garbage or other")
	addCmd.Flags().StringVar(&title, "title", "", "Short description of the rule")
	_ = addCmd.MarkFlagRequired("pattern")

	mineCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of patterns to report (0 for all)")

	Cmd.AddCommand(listCmd, addCmd, importCmd, versionsCmd, rollbackCmd, mineCmd)
}

func requireContainer() (*container.Container, error) {
	c := root.GetContainer()
	if c == nil {
		return nil, fmt.Errorf("container not initialized")
	}
	return c, nil
}

func appendRules(cmd *cobra.Command, c *container.Container, candidates []models.CorrectionRule) error {
	report, err := c.GetRuleStore().Append(cmd.Context(), candidates)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range report.Rejected {
		fmt.Fprintf(out, "rejected: %v\n", e)
	}
	fmt.Fprintf(out, "%d added, %d duplicates, %d rejected\n", report.Added, report.Duplicates, len(report.Rejected))
	if report.Version > 0 {
		fmt.Fprintf(out, "Previous rules saved as v%d\n", report.Version)
	}
	if report.Added == 0 && len(report.Rejected) > 0 {
		return fmt.Errorf("no rule was added")
	}
	return nil
}

func printRules(out io.Writer, defs []models.CorrectionRule) {
	if len(defs) == 0 {
		fmt.Fprintln(out, "No correction rules")
		return
	}
	for i, d := range defs {
		replacement := "(detect only)"
		if d.Replace != nil {
			replacement = strconv.Quote(*d.Replace)
		}
		fmt.Fprintf(out, "%3d  %-8s %-40s -> %s  %s\n", i+1, d.Category, strconv.Quote(d.Pattern), replacement, d.Title)
	}
}
