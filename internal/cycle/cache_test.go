package cycle

import (
	"testing"

	"github.com/workgraph/workgraph/internal/workgraph"
)

func TestCacheReusesAnalysisUntilEdgesChange(t *testing.T) {
	g := buildReviewCycle(t)
	c := &Cache{}

	first := c.Get(g)
	if first == nil {
		t.Fatal("expected an analysis")
	}

	// A status-only mutation leaves the edge set alone, so the cached
	// analysis is reused.
	done := workgraph.StatusDone
	if err := g.Edit("write", workgraph.Patch{Status: &done}); err != nil {
		t.Fatalf("edit status: %v", err)
	}
	if c.Get(g) != first {
		t.Fatal("status-only mutation must not recompute the analysis")
	}

	// An after edit changes the edge set; the next Get recomputes.
	if err := g.Edit("publish", workgraph.Patch{AddAfter: []string{"write"}}); err != nil {
		t.Fatalf("edit after: %v", err)
	}
	second := c.Get(g)
	if second == first {
		t.Fatal("edge change must recompute the analysis")
	}
	if c.Get(g) != second {
		t.Fatal("unchanged edges must reuse the recomputed analysis")
	}
}

func TestCacheRecomputesWhenTaskAddedOrRemoved(t *testing.T) {
	g := buildReviewCycle(t)
	c := &Cache{}
	first := c.Get(g)

	if err := g.Add(workgraph.NewTask("extra", "Extra")); err != nil {
		t.Fatalf("add: %v", err)
	}
	second := c.Get(g)
	if second == first {
		t.Fatal("adding a task must recompute the analysis")
	}

	if err := g.Remove("extra"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Get(g) == second {
		t.Fatal("removing a task must recompute the analysis")
	}
}
