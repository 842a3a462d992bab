// Package watch computes the categorized event stream behind `workgraph
// watch`: it diffs two successive snapshots of the graph and
// reports status changes, readiness changes, and cycle re-openings as
// Events. The package does no I/O of its own; cmd/workgraph wires it to
// fsnotify and a terminal renderer.
package watch

import (
	"fmt"
	"sort"
	"time"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/ready"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// Category tags the kind of change an Event reports, used by `--filter`.
type Category string

const (
	CategoryStatus Category = "status"
	CategoryReady  Category = "ready"
	CategoryCycle  Category = "cycle"
)

// Event is one observed change between two snapshots.
type Event struct {
	Category Category  `json:"category"`
	TaskID   string    `json:"task_id"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Snapshot is the watch loop's view of the graph at one instant: enough to
// diff against the next snapshot without re-running Tarjan or holding the
// whole graph in memory between ticks.
type Snapshot struct {
	Statuses      map[string]workgraph.Status
	LoopIteration map[string]int
	Ready         map[string]bool
	TaskCount     int
}

// TakeSnapshot computes a Snapshot from the current graph state.
func TakeSnapshot(g *workgraph.Graph) Snapshot {
	analysis := cycle.Analyze(g)
	snap := Snapshot{
		Statuses:      make(map[string]workgraph.Status, g.Len()),
		LoopIteration: make(map[string]int, g.Len()),
		Ready:         make(map[string]bool, g.Len()),
		TaskCount:     g.Len(),
	}
	for _, t := range g.Tasks() {
		snap.Statuses[t.ID] = t.Status
		snap.LoopIteration[t.ID] = t.LoopIteration
	}
	for _, id := range ready.ReadyTasks(g, analysis, nil) {
		snap.Ready[id] = true
	}
	return snap
}

// Diff reports every observable change between prev and cur, sorted by
// task ID for deterministic output. A zero-value prev (first snapshot of
// a watch session) reports every task's initial status and readiness.
func Diff(prev, cur Snapshot, now time.Time) []Event {
	var events []Event
	ids := make(map[string]struct{}, len(cur.Statuses))
	for id := range cur.Statuses {
		ids[id] = struct{}{}
	}
	for id := range prev.Statuses {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		prevStatus, hadPrev := prev.Statuses[id]
		curStatus, hasCur := cur.Statuses[id]

		switch {
		case !hadPrev && hasCur:
			events = append(events, Event{Category: CategoryStatus, TaskID: id, At: now,
				Message: fmt.Sprintf("%s created (%s)", id, curStatus)})
		case hadPrev && !hasCur:
			events = append(events, Event{Category: CategoryStatus, TaskID: id, At: now,
				Message: fmt.Sprintf("%s removed", id)})
			continue
		case prevStatus != curStatus:
			events = append(events, Event{Category: CategoryStatus, TaskID: id, At: now,
				Message: fmt.Sprintf("%s: %s -> %s", id, prevStatus, curStatus)})
		}

		if hasCur && prev.LoopIteration[id] != cur.LoopIteration[id] && hadPrev {
			events = append(events, Event{Category: CategoryCycle, TaskID: id, At: now,
				Message: fmt.Sprintf("%s entered loop iteration %d", id, cur.LoopIteration[id])})
		}

		prevReady, curReady := prev.Ready[id], cur.Ready[id]
		if hasCur && curReady && (!hadPrev || !prevReady) {
			events = append(events, Event{Category: CategoryReady, TaskID: id, At: now,
				Message: fmt.Sprintf("%s became ready", id)})
		}
	}
	return events
}

// Filter keeps only events whose Category matches one of cats. An empty
// cats keeps everything.
func Filter(events []Event, cats []Category) []Event {
	if len(cats) == 0 {
		return events
	}
	want := make(map[Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	var out []Event
	for _, e := range events {
		if want[e.Category] {
			out = append(out, e)
		}
	}
	return out
}

// ParseCategory validates a `--filter` value.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryStatus, CategoryReady, CategoryCycle:
		return Category(raw), nil
	default:
		return "", fmt.Errorf("watch: unknown filter category %q (want status, ready, or cycle)", raw)
	}
}
