package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/workgraph/workgraph/internal/workgraph"
)

var (
	listJSON  bool
	showField string
	showJSON  bool
	checkJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every task",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List tasks currently dispatchable",
	Args:  cobra.NoArgs,
	RunE:  runReady,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the graph and report findings",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit JSON lines instead of a table")
	showCmd.Flags().StringVar(&showField, "field", "", "print only this field's value (e.g. status)")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "emit JSON instead of a table")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(listCmd, readyCmd, showCmd, checkCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	tasks, err := a.List()
	if err != nil {
		return err
	}
	if listJSON {
		return printJSONLines(tasks)
	}
	for _, t := range tasks {
		fmt.Printf("%-24s %-12s %s\n", t.ID, t.Status, t.Title)
	}
	return nil
}

func runReady(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	ids, err := a.Ready()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	t, err := a.Show(args[0])
	if err != nil {
		return err
	}
	if showField != "" {
		value, err := taskField(t, showField)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}
	if showJSON {
		return printJSON(t)
	}
	fmt.Printf("id:          %s\n", t.ID)
	fmt.Printf("title:       %s\n", t.Title)
	fmt.Printf("status:      %s\n", t.Status)
	fmt.Printf("claimed_by:  %s\n", t.ClaimedBy)
	fmt.Printf("after:       %v\n", t.After)
	fmt.Printf("before:      %v\n", t.Before)
	fmt.Printf("tags:        %v\n", t.Tags)
	fmt.Printf("loop_iter:   %d\n", t.LoopIteration)
	fmt.Printf("paused:      %v\n", t.Paused)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	findings, err := a.Check()
	if err != nil {
		return err
	}
	if checkJSON {
		return printJSONLines(findings)
	}
	if len(findings) == 0 {
		fmt.Println("ok: no findings")
		return nil
	}
	errCount := 0
	for _, f := range findings {
		fmt.Printf("[%s] %s: %s\n", f.Severity, f.Code, f.Message)
		if f.Severity == "error" {
			errCount++
		}
	}
	if errCount > 0 {
		os.Exit(1)
	}
	return nil
}

// taskField projects a single display field of t, for the wrapper
// script's `show <id> --field status` self-reporting usage.
func taskField(t *workgraph.Task, field string) (string, error) {
	switch field {
	case "id":
		return t.ID, nil
	case "title":
		return t.Title, nil
	case "status":
		return string(t.Status), nil
	case "claimed_by":
		return t.ClaimedBy, nil
	case "loop_iteration":
		return strconv.Itoa(t.LoopIteration), nil
	case "paused":
		return strconv.FormatBool(t.Paused), nil
	case "exec":
		return t.Exec, nil
	case "agent":
		return t.Agent, nil
	default:
		return "", fmt.Errorf("show: unknown field %q", field)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONLines[T any](items []T) error {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
