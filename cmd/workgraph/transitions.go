package main

import (
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/workgraph/workgraph/internal/app"
)

var (
	claimAs       string
	doneConverged bool
	failReason    string
	abandonReason string
	unclaimReason string
)

var claimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Claim an open task",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaim,
}

var unclaimCmd = &cobra.Command{
	Use:   "unclaim <id>",
	Short: "Release a claimed task back to open",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnclaim,
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE:  runDone,
}

var failCmd = &cobra.Command{
	Use:   "fail <id>",
	Short: "Mark a task failed",
	Args:  cobra.ExactArgs(1),
	RunE:  runFail,
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <id>",
	Short: "Mark a task abandoned",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbandon,
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Reset a terminal task back to open",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	claimCmd.Flags().StringVar(&claimAs, "as", "", "claimant identity (default: current OS user)")
	doneCmd.Flags().BoolVar(&doneConverged, "converged", false, "stop further cycle iteration regardless of remaining budget or guard")
	failCmd.Flags().StringVar(&failReason, "reason", "", "reason recorded in the task's log")
	abandonCmd.Flags().StringVar(&abandonReason, "reason", "", "reason recorded in the task's log")
	unclaimCmd.Flags().StringVar(&unclaimReason, "reason", "", "reason recorded in the task's log")
	rootCmd.AddCommand(claimCmd, unclaimCmd, doneCmd, failCmd, abandonCmd, retryCmd)
}

func runClaim(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	claimant := claimAs
	if claimant == "" {
		claimant = currentActor()
	}
	return a.Claim(args[0], claimant, currentActor())
}

func runUnclaim(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	return a.Unclaim(args[0], currentActor(), unclaimReason)
}

func runDone(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	return a.Done(args[0], currentActor(), doneConverged)
}

func runFail(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	return a.Fail(args[0], currentActor(), failReason)
}

func runAbandon(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	return a.Abandon(args[0], currentActor(), abandonReason)
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	return a.Retry(args[0], currentActor())
}

func openApp() (*app.App, error) {
	dir, err := resolveProjectDir()
	if err != nil {
		return nil, err
	}
	return app.Open(dir)
}

// currentActor identifies who is running this CLI invocation, for the
// task's log and operations.jsonl.
func currentActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "cli"
}
