// Command workgraph is the CLI surface over a project's .workgraph
// directory: task creation, editing, status transitions, queries,
// and control of the workgraphd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// projectDir is the directory holding .workgraph/, set by the
	// persistent --dir flag and defaulting to the current directory.
	projectDir string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "workgraph",
	Short: "Task-graph coordination for multi-agent work",
	Long: `workgraph tracks a project's tasks as a dependency graph, determines
which tasks are ready to run, and (via workgraphd) dispatches agent
processes to run them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", "", "project directory (default: current directory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func resolveProjectDir() (string, error) {
	if projectDir != "" {
		return projectDir, nil
	}
	return os.Getwd()
}
