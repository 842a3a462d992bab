package ready

import (
	"testing"
	"time"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/workgraph"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// TestLinearPipeline walks a three-stage chain: A, B(after A), C(after B).
func TestLinearPipeline(t *testing.T) {
	g := workgraph.New()
	mustAdd(t, g, workgraph.NewTask("a", "A"))
	b := workgraph.NewTask("b", "B")
	b.After = []string{"a"}
	mustAdd(t, g, b)
	c := workgraph.NewTask("c", "C")
	c.After = []string{"b"}
	mustAdd(t, g, c)

	now := fixedClock(time.Now())
	assertReadySet(t, g, now, "a")

	complete(t, g, "a")
	assertReadySet(t, g, now, "b")

	complete(t, g, "b")
	assertReadySet(t, g, now, "c")

	complete(t, g, "c")
	assertReadySet(t, g, now)
}

// TestDiamondWithFailedLeaf checks that failed is terminal, so it unblocks
// dependents just like done.
func TestDiamondWithFailedLeaf(t *testing.T) {
	g := workgraph.New()
	mustAdd(t, g, workgraph.NewTask("plan", "Plan"))
	ui := workgraph.NewTask("ui", "UI")
	ui.After = []string{"plan"}
	mustAdd(t, g, ui)
	api := workgraph.NewTask("api", "API")
	api.After = []string{"plan"}
	mustAdd(t, g, api)
	sync := workgraph.NewTask("sync", "Sync")
	sync.After = []string{"ui", "api"}
	mustAdd(t, g, sync)

	now := fixedClock(time.Now())
	complete(t, g, "plan")
	assertReadySet(t, g, now, "api", "ui")

	fail(t, g, "api")
	assertReadySet(t, g, now, "ui")

	complete(t, g, "ui")
	assertReadySet(t, g, now, "sync")

	complete(t, g, "sync")
	assertReadySet(t, g, now)
}

func TestPausedTaskIsNeverReady(t *testing.T) {
	g := workgraph.New()
	a := workgraph.NewTask("a", "A")
	a.Paused = true
	mustAdd(t, g, a)
	if IsReady(g, nil, "a", fixedClock(time.Now())) {
		t.Fatalf("expected paused task to never be ready")
	}
}

func TestNotBeforeGatesReadiness(t *testing.T) {
	g := workgraph.New()
	future := time.Now().Add(time.Hour)
	a := workgraph.NewTask("a", "A")
	a.NotBefore = &future
	mustAdd(t, g, a)

	if IsReady(g, nil, "a", fixedClock(time.Now())) {
		t.Fatalf("expected task to be gated by not_before")
	}
	if !IsReady(g, nil, "a", fixedClock(future.Add(time.Minute))) {
		t.Fatalf("expected task to become ready once not_before has passed")
	}
}

func TestDanglingAfterReferenceIsFailOpen(t *testing.T) {
	g := workgraph.New()
	a := workgraph.NewTask("a", "A")
	a.After = []string{"does-not-exist"}
	mustAdd(t, g, a)
	if !IsReady(g, nil, "a", fixedClock(time.Now())) {
		t.Fatalf("expected dangling after-reference to be treated as resolved")
	}
}

// TestBackEdgeExemptionOnlyOnHeader checks that no non-header cycle member
// becomes ready while a non-exempt predecessor is
// non-terminal, even though it sits in the same SCC.
func TestBackEdgeExemptionOnlyOnHeader(t *testing.T) {
	g := workgraph.New()
	write := workgraph.NewTask("write", "Write")
	write.CycleConfig = &workgraph.CycleConfig{MaxIterations: 5}
	mustAdd(t, g, write)
	review := workgraph.NewTask("review", "Review")
	review.After = []string{"write"}
	mustAdd(t, g, review)
	if err := g.Edit("write", workgraph.Patch{AddAfter: []string{"review"}}); err != nil {
		t.Fatalf("add back-edge: %v", err)
	}

	analysis := cycle.Analyze(g)
	now := fixedClock(time.Now())

	// write is the header; its back-edge to review is exempted even though
	// review is open (non-terminal).
	if !IsReady(g, analysis, "write", now) {
		t.Fatalf("expected header write to be ready via back-edge exemption")
	}
	// review is not the header; it must wait for write normally.
	if IsReady(g, analysis, "review", now) {
		t.Fatalf("expected non-header review to NOT be ready while write is non-terminal")
	}
}

func complete(t *testing.T, g *workgraph.Graph, id string) {
	t.Helper()
	done := workgraph.StatusDone
	if err := g.Edit(id, workgraph.Patch{Status: &done}); err != nil {
		t.Fatalf("complete %s: %v", id, err)
	}
}

func fail(t *testing.T, g *workgraph.Graph, id string) {
	t.Helper()
	failed := workgraph.StatusFailed
	if err := g.Edit(id, workgraph.Patch{Status: &failed}); err != nil {
		t.Fatalf("fail %s: %v", id, err)
	}
}

func mustAdd(t *testing.T, g *workgraph.Graph, task *workgraph.Task) {
	t.Helper()
	if err := g.Add(task); err != nil {
		t.Fatalf("add %s: %v", task.ID, err)
	}
}

func assertReadySet(t *testing.T, g *workgraph.Graph, now Clock, want ...string) {
	t.Helper()
	got := ReadyTasks(g, nil, now)
	if len(got) != len(want) {
		t.Fatalf("ready = %v, want %v", got, want)
	}
	wantSet := make(map[string]bool, len(want))
	for _, id := range want {
		wantSet[id] = true
	}
	for _, id := range got {
		if !wantSet[id] {
			t.Fatalf("ready = %v, want %v", got, want)
		}
	}
}
