package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/workgraph/workgraph/internal/app"
	"github.com/workgraph/workgraph/internal/workgraph"
)

var (
	addDescription string
	addAfter       string
	addTags        string
	addExec        string
	addModel       string
	addAgent       string
	addCycleMax    int
	addCycleGuard  string
	addCycleDelay  string
	addVisibility  string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addDescription, "description", "", "task description")
	addCmd.Flags().StringVar(&addAfter, "after", "", "comma-separated predecessor task IDs")
	addCmd.Flags().StringVar(&addTags, "tags", "", "comma-separated tags")
	addCmd.Flags().StringVar(&addExec, "exec", "", "shell command to run (implies the shell executor)")
	addCmd.Flags().StringVar(&addModel, "model", "", "model override for the claude executor")
	addCmd.Flags().StringVar(&addAgent, "agent", "", "assigned agent reference")
	addCmd.Flags().IntVar(&addCycleMax, "cycle-max", 0, "mark this task a cycle header with the given max_iterations")
	addCmd.Flags().StringVar(&addCycleGuard, "cycle-guard", "", "guard spec: always, task-status:<id>:<status>, iteration-lt:<n>")
	addCmd.Flags().StringVar(&addCycleDelay, "cycle-delay", "", "delay before the header becomes ready again, e.g. 5m")
	addCmd.Flags().StringVar(&addVisibility, "visibility", "", "internal (default), public, or peer")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	dir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	a, err := app.Open(dir)
	if err != nil {
		return err
	}

	var cc *workgraph.CycleConfig
	if addCycleMax > 0 || addCycleGuard != "" || addCycleDelay != "" {
		guard, gerr := parseGuard(addCycleGuard)
		if gerr != nil {
			return gerr
		}
		maxIter := addCycleMax
		if maxIter <= 0 {
			maxIter = 1
		}
		cc = &workgraph.CycleConfig{MaxIterations: maxIter, Guard: guard, Delay: addCycleDelay}
	}

	params := app.NewTaskParams{
		Title:       args[0],
		Description: addDescription,
		After:       splitCSV(addAfter),
		Tags:        splitCSV(addTags),
		Exec:        addExec,
		Model:       addModel,
		Agent:       addAgent,
		Visibility:  workgraph.Visibility(addVisibility),
		CycleConfig: cc,
	}
	id, err := a.Add(params)
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
