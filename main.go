package main

import (
	"fmt"
	"os"

	"banklytik/statement-normalizer/cmd/batch"
	"banklytik/statement-normalizer/cmd/process"
	"banklytik/statement-normalizer/cmd/review"
	"banklytik/statement-normalizer/cmd/root"
	"banklytik/statement-normalizer/cmd/rules"
)

func init() {
	root.Init()

	root.Cmd.AddCommand(process.Cmd)
	root.Cmd.AddCommand(batch.Cmd)
	root.Cmd.AddCommand(rules.Cmd)
	root.Cmd.AddCommand(review.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
