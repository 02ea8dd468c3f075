package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	docPaths []string
	raw      bool
)

// runCmd executes a single task
var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run one task and print its response envelope",
	Long: `Run one natural-language task, for example:

  fluid run "get a random cat fact from https://catfact.ninja/fact"
  fluid run "list open issues" --doc api.md --doc auth.md

Documentation files (.txt, .md, .mdx) are appended to the
generator's instructions. Exits with status 1 when the task fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orchestrator, err := newOrchestrator(cmd.Context(), docPaths, raw)
		if err != nil {
			return err
		}

		out, err := orchestrator.RunJSON(cmd.Context(), args[0])
		if err != nil {
			logger.Error("task failed", zap.String("task", args[0]), zap.Error(err))
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, batchCmd} {
		cmd.Flags().StringArrayVarP(&docPaths, "doc", "d", nil, "Documentation file for the target API (repeatable)")
		cmd.Flags().BoolVar(&raw, "raw", false, "Return response bodies as unparsed text")
	}
}
