package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/workgraph/workgraph/internal/app"
	"github.com/workgraph/workgraph/internal/tui"
	"github.com/workgraph/workgraph/internal/watch"
)

var (
	watchJSON   bool
	watchTUI    bool
	watchFilter string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream graph changes as they happen",
	Long: `watch prints a line for every status change, readiness change, and
cycle re-opening as the graph file changes, either because the daemon
dispatched a tick or because a client edited it directly. It reacts
immediately to edits via fsnotify and otherwise falls back to the same
tick_interval safety-net poll the coordinator itself uses, so manual
edits to graph.jsonl are never missed.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "emit JSON lines instead of text")
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "render a live view instead of printing lines")
	watchCmd.Flags().StringVar(&watchFilter, "filter", "", "comma-separated categories to show: status, ready, cycle")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	a, err := app.Open(dir)
	if err != nil {
		return err
	}
	cats, err := parseFilterList(watchFilter)
	if err != nil {
		return err
	}

	snapshots := streamSnapshots(a)
	if watchTUI {
		return runWatchTUI(snapshots, cats)
	}
	return runWatchText(snapshots, cats)
}

func parseFilterList(raw string) ([]watch.Category, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var cats []watch.Category
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cat, err := watch.ParseCategory(part)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

// streamSnapshots emits one watch.Snapshot on startup and again every time
// graph.jsonl changes, either observed directly via fsnotify on its
// containing directory (the store replaces the file with a rename, which
// would silently break a watch on the file path itself, so the directory
// is what's watched) or via the tick_interval safety-net poll.
func streamSnapshots(a *app.App) <-chan watch.Snapshot {
	out := make(chan watch.Snapshot)
	go func() {
		graphPath := a.Config.GraphPath()
		graphName := filepath.Base(graphPath)

		var events chan fsnotify.Event
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			defer watcher.Close()
			if err := watcher.Add(filepath.Dir(graphPath)); err == nil {
				events = watcher.Events
			}
		}

		ticker := time.NewTicker(a.Config.TickInterval())
		defer ticker.Stop()

		emit := func() {
			g, err := a.Load()
			if err != nil {
				return
			}
			out <- watch.TakeSnapshot(g)
		}

		emit()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if filepath.Base(ev.Name) == graphName {
					emit()
				}
			case <-ticker.C:
				emit()
			}
		}
	}()
	return out
}

func runWatchText(snapshots <-chan watch.Snapshot, cats []watch.Category) error {
	var prev watch.Snapshot
	for snap := range snapshots {
		events := watch.Filter(watch.Diff(prev, snap, time.Now().UTC()), cats)
		prev = snap
		for _, e := range events {
			if watchJSON {
				data, err := json.Marshal(e)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				continue
			}
			fmt.Printf("[%s] %s\n", e.Category, e.Message)
		}
	}
	return nil
}

func runWatchTUI(snapshots <-chan watch.Snapshot, cats []watch.Category) error {
	updates := make(chan tui.Update)
	go func() {
		var prev watch.Snapshot
		for snap := range snapshots {
			events := watch.Filter(watch.Diff(prev, snap, time.Now().UTC()), cats)
			prev = snap
			updates <- tui.Update{Snapshot: snap, Events: events}
		}
	}()

	_, err := tea.NewProgram(tui.NewWatchModel(updates)).Run()
	return err
}
