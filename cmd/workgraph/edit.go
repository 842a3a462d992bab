package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/workgraph/workgraph/internal/app"
	"github.com/workgraph/workgraph/internal/workgraph"
)

var (
	editAddAfter    string
	editRemoveAfter string
	editAddTags     string
	editRemoveTags  string
	editSetStatus   string
	editNotBefore   string
	editPause       bool
	editResume      bool
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an existing task",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editAddAfter, "add-after", "", "comma-separated predecessor IDs to add")
	editCmd.Flags().StringVar(&editRemoveAfter, "remove-after", "", "comma-separated predecessor IDs to remove")
	editCmd.Flags().StringVar(&editAddTags, "add-tags", "", "comma-separated tags to add")
	editCmd.Flags().StringVar(&editRemoveTags, "remove-tags", "", "comma-separated tags to remove")
	editCmd.Flags().StringVar(&editSetStatus, "set-status", "", "force a status value (bypasses normal transitions)")
	editCmd.Flags().StringVar(&editNotBefore, "not-before", "", "earliest dispatch time as an RFC3339 UTC timestamp, or 'none' to clear")
	editCmd.Flags().BoolVar(&editPause, "pause", false, "pause the task")
	editCmd.Flags().BoolVar(&editResume, "resume", false, "resume (unpause) the task")
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	dir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	a, err := app.Open(dir)
	if err != nil {
		return err
	}

	p := app.EditParams{
		AddAfter:    splitCSV(editAddAfter),
		RemoveAfter: splitCSV(editRemoveAfter),
		AddTags:     splitCSV(editAddTags),
		RemoveTags:  splitCSV(editRemoveTags),
	}
	if editSetStatus != "" {
		status := workgraph.Status(editSetStatus)
		p.Status = &status
	}
	if editNotBefore != "" {
		if editNotBefore == "none" {
			var cleared *time.Time
			p.NotBefore = &cleared
		} else {
			ts, perr := time.Parse(time.RFC3339, editNotBefore)
			if perr != nil {
				return fmt.Errorf("edit: not-before: %w", perr)
			}
			utc := ts.UTC()
			ptr := &utc
			p.NotBefore = &ptr
		}
	}
	if editPause {
		t := true
		p.Paused = &t
	}
	if editResume {
		f := false
		p.Paused = &f
	}
	return a.Edit(args[0], p)
}
