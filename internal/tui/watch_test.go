package tui

import (
	"testing"

	"github.com/workgraph/workgraph/internal/watch"
	"github.com/workgraph/workgraph/internal/workgraph"
)

func TestWatchModelAppliesUpdates(t *testing.T) {
	updates := make(chan Update)
	m := NewWatchModel(updates)

	snap := watch.Snapshot{
		Statuses:  map[string]workgraph.Status{"a": workgraph.StatusOpen},
		TaskCount: 1,
		Ready:     map[string]bool{"a": true},
	}
	events := []watch.Event{{Category: watch.CategoryReady, TaskID: "a", Message: "a became ready"}}

	next, cmd := m.Update(updateMsg{Snapshot: snap, Events: events})
	wm := next.(WatchModel)
	if wm.taskCnt != 1 || wm.readyCnt != 1 {
		t.Fatalf("applyUpdate did not populate counts: taskCnt=%d readyCnt=%d", wm.taskCnt, wm.readyCnt)
	}
	if len(wm.events) != 1 {
		t.Fatalf("expected one recorded event, got %d", len(wm.events))
	}
	if cmd == nil {
		t.Fatal("expected Update to requeue waitForUpdate after an updateMsg")
	}
}

func TestWatchModelQuitsWhenUpdatesChannelCloses(t *testing.T) {
	updates := make(chan Update)
	close(updates)
	m := NewWatchModel(updates)

	next, cmd := m.Update(updatesClosedMsg{})
	wm := next.(WatchModel)
	if !wm.quitting {
		t.Fatal("model should be quitting once the updates channel closes")
	}
	if cmd == nil {
		t.Fatal("expected a tea.Quit command once updates close")
	}
}

func TestWatchModelRendersTaskCounts(t *testing.T) {
	updates := make(chan Update)
	m := NewWatchModel(updates)
	snap := watch.Snapshot{
		Statuses:  map[string]workgraph.Status{"a": workgraph.StatusDone},
		TaskCount: 1,
		Ready:     map[string]bool{},
	}
	next, _ := m.Update(updateMsg{Snapshot: snap})
	wm := next.(WatchModel)
	view := wm.View()
	if view == "" {
		t.Fatal("View() should render non-empty output before quitting")
	}
}
