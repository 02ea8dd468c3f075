package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/fluid-api/internal/orchestration"
)

var tasksFile string

// batchCmd executes tasks one after another
var batchCmd = &cobra.Command{
	Use:   "batch [task...]",
	Short: "Run several tasks and print the envelopes of those that succeed",
	Long: `Run tasks one after another. A failing task is logged and left out of
the output; the remaining tasks still run. Tasks come from the arguments
and from --file, one per line (blank lines and lines starting with # are
skipped). Use --file - to read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks := append([]string{}, args...)
		if tasksFile != "" {
			fromFile, err := loadTasks(tasksFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			tasks = append(tasks, fromFile...)
		}
		if len(tasks) == 0 {
			return fmt.Errorf("no tasks given")
		}

		orchestrator, err := newOrchestrator(cmd.Context(), docPaths, raw)
		if err != nil {
			return err
		}

		out, err := orchestration.NewBatchRunner(orchestrator, logger).RunBatchJSON(cmd.Context(), tasks)
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&tasksFile, "file", "f", "", "File with one task per line")
}

func loadTasks(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return readTasks(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks file: %w", err)
	}
	defer f.Close()
	return readTasks(f)
}

func readTasks(r io.Reader) ([]string, error) {
	var tasks []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	return tasks, nil
}
