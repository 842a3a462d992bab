package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/workgraph/workgraph/internal/workgraph"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "graph.jsonl"), filepath.Join(dir, "operations.jsonl"))
}

func TestLoadMissingFileIsEmptyGraph(t *testing.T) {
	s := newStore(t)
	g, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Len() != 0 {
		t.Fatalf("expected empty graph, got %d tasks", g.Len())
	}
}

func TestMutateRoundTripsTasks(t *testing.T) {
	s := newStore(t)
	err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		a := workgraph.NewTask("a", "A")
		a.Tags = []string{"priority"}
		if err := g.Add(a); err != nil {
			return err
		}
		b := workgraph.NewTask("b", "B")
		b.After = []string{"a"}
		return g.Add(b)
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	g, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("len = %d, want 2", g.Len())
	}
	b, _ := g.Get("b")
	if len(b.After) != 1 || b.After[0] != "a" {
		t.Fatalf("b.after = %v", b.After)
	}
	a, _ := g.Get("a")
	if len(a.Before) != 1 || a.Before[0] != "b" {
		t.Fatalf("a.before = %v, want [b] (index rebuilt on load)", a.Before)
	}
}

func TestFailedMutationWritesNothing(t *testing.T) {
	s := newStore(t)
	if err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		return g.Add(workgraph.NewTask("a", "A"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, err := os.ReadFile(s.graphPath)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	opsBefore, _ := s.Operations()

	err = s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		if err := g.Add(workgraph.NewTask("b", "B")); err != nil {
			return err
		}
		return fmt.Errorf("simulated failure after a partial in-memory change")
	})
	if err == nil {
		t.Fatal("expected the mutation to fail")
	}

	after, err := os.ReadFile(s.graphPath)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("failed mutation must leave the graph file untouched")
	}
	opsAfter, _ := s.Operations()
	if len(opsAfter) != len(opsBefore) {
		t.Fatalf("failed mutation must not append an operation: %d -> %d", len(opsBefore), len(opsAfter))
	}
}

func TestBlockedByAliasCanonicalizedOnNextWrite(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "graph.jsonl")
	lines := `{"kind":"task","id":"a","title":"A","status":"done","loop_iteration":0}
{"kind":"task","id":"b","title":"B","status":"open","blocked_by":["a"],"loop_iteration":0}
`
	if err := os.WriteFile(graphPath, []byte(lines), 0o644); err != nil {
		t.Fatalf("seed graph file: %v", err)
	}
	s := New(graphPath, filepath.Join(dir, "operations.jsonl"))

	g, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, _ := g.Get("b")
	if len(b.After) != 1 || b.After[0] != "a" {
		t.Fatalf("blocked_by alias not merged into after: %v", b.After)
	}

	// Any mutation rewrites the whole file; the alias must come back out as
	// the canonical field name.
	if err := s.Mutate("task_edit", "test", func(g *workgraph.Graph) error {
		title := "B renamed"
		return g.Edit("b", workgraph.Patch{Title: &title})
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	data, err := os.ReadFile(graphPath)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	if strings.Contains(string(data), "blocked_by") {
		t.Fatalf("legacy alias written back out:\n%s", data)
	}
	if !strings.Contains(string(data), `"after":["a"]`) {
		t.Fatalf("canonical after field missing:\n%s", data)
	}
}

func TestUnknownFieldsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "graph.jsonl")
	line := `{"kind":"task","id":"a","title":"A","status":"open","loop_iteration":0,"x_custom":{"nested":[1,2]},"x_flag":true}` + "\n"
	if err := os.WriteFile(graphPath, []byte(line), 0o644); err != nil {
		t.Fatalf("seed graph file: %v", err)
	}
	s := New(graphPath, filepath.Join(dir, "operations.jsonl"))

	if err := s.Mutate("task_edit", "test", func(g *workgraph.Graph) error {
		title := "A edited"
		return g.Edit("a", workgraph.Patch{Title: &title})
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	data, err := os.ReadFile(graphPath)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &parsed); err != nil {
		t.Fatalf("parse rewritten line: %v", err)
	}
	if string(parsed["x_custom"]) != `{"nested":[1,2]}` {
		t.Fatalf("x_custom not preserved: %s", parsed["x_custom"])
	}
	if string(parsed["x_flag"]) != "true" {
		t.Fatalf("x_flag not preserved: %s", parsed["x_flag"])
	}
	if !strings.Contains(string(data), `"title":"A edited"`) {
		t.Fatalf("edit lost during round-trip:\n%s", data)
	}
}

func TestGuardWireFormatRoundTrips(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "graph.jsonl")
	line := `{"kind":"task","id":"write","title":"Write","status":"open",` +
		`"cycle_config":{"max_iterations":5,"guard":{"TaskStatus":{"task":"review","status":"failed"}},"delay":"5m"},` +
		`"loop_iteration":0}` + "\n"
	if err := os.WriteFile(graphPath, []byte(line), 0o644); err != nil {
		t.Fatalf("seed graph file: %v", err)
	}
	s := New(graphPath, filepath.Join(dir, "operations.jsonl"))

	g, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	task, _ := g.Get("write")
	if task.CycleConfig == nil || task.CycleConfig.Guard == nil {
		t.Fatalf("cycle_config/guard missing: %+v", task.CycleConfig)
	}
	guard := task.CycleConfig.Guard
	if guard.Variant() != workgraph.GuardTaskStatus || guard.TaskID != "review" || guard.Status != workgraph.StatusFailed {
		t.Fatalf("guard = %+v", guard)
	}

	if err := s.Mutate("task_edit", "test", func(g *workgraph.Graph) error {
		title := "Write v2"
		return g.Edit("write", workgraph.Patch{Title: &title})
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	data, err := os.ReadFile(graphPath)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	if !strings.Contains(string(data), `"guard":{"TaskStatus":{"task":"review","status":"failed"}}`) {
		t.Fatalf("guard not written back in wire format:\n%s", data)
	}
}

// TestOperationsLogIsAppendOnlyPrefix checks that after any sequence of
// mutations, the previously-read operations are a prefix of
// the current log.
func TestOperationsLogIsAppendOnlyPrefix(t *testing.T) {
	s := newStore(t)
	var prefixes [][]Operation
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("t%d", i)
		if err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
			return g.Add(workgraph.NewTask(id, id))
		}); err != nil {
			t.Fatalf("mutate %d: %v", i, err)
		}
		ops, err := s.Operations()
		if err != nil {
			t.Fatalf("operations: %v", err)
		}
		prefixes = append(prefixes, ops)
	}

	final := prefixes[len(prefixes)-1]
	if len(final) != 4 {
		t.Fatalf("expected 4 operations, got %d", len(final))
	}
	for i, prefix := range prefixes {
		if len(prefix) != i+1 {
			t.Fatalf("after mutation %d: %d operations, want %d", i, len(prefix), i+1)
		}
		for j, op := range prefix {
			if op.Op != final[j].Op || !op.Timestamp.Equal(final[j].Timestamp) ||
				op.BeforeHash != final[j].BeforeHash || op.AfterHash != final[j].AfterHash {
				t.Fatalf("operation %d rewritten between reads: %+v vs %+v", j, op, final[j])
			}
		}
	}
}

func TestOperationsRecordStateHashes(t *testing.T) {
	s := newStore(t)
	if err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		return g.Add(workgraph.NewTask("a", "A"))
	}); err != nil {
		t.Fatalf("first mutate: %v", err)
	}
	if err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		return g.Add(workgraph.NewTask("b", "B"))
	}); err != nil {
		t.Fatalf("second mutate: %v", err)
	}
	ops, err := s.Operations()
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	if ops[0].AfterHash != ops[1].BeforeHash {
		t.Fatalf("hash chain broken: %s != %s", ops[0].AfterHash, ops[1].BeforeHash)
	}
	if ops[0].BeforeHash == ops[0].AfterHash {
		t.Fatal("a mutation must change the state hash")
	}
}

func TestOperationsRecordDiffSummaries(t *testing.T) {
	s := newStore(t)
	if err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		return g.Add(workgraph.NewTask("a", "A"))
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Mutate("task_edit", "test", func(g *workgraph.Graph) error {
		title := "A renamed"
		return g.Edit("a", workgraph.Patch{Title: &title})
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := s.Mutate("task_remove", "test", func(g *workgraph.Graph) error {
		return g.Remove("a")
	}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ops, err := s.Operations()
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	want := []string{"+a", "~a", "-a"}
	if len(ops) != len(want) {
		t.Fatalf("expected %d operations, got %d", len(want), len(ops))
	}
	for i, diff := range want {
		if ops[i].Diff != diff {
			t.Fatalf("ops[%d].Diff = %q, want %q", i, ops[i].Diff, diff)
		}
	}
}

// TestMutateIsAllOrNothingAcrossManyEdits checks, at the persistence
// layer, that many Edit calls inside one Mutate become visible
// to readers as a single rewrite.
func TestMutateIsAllOrNothingAcrossManyEdits(t *testing.T) {
	s := newStore(t)
	if err := s.Mutate("task_create", "test", func(g *workgraph.Graph) error {
		for _, id := range []string{"write", "review", "revise"} {
			done := workgraph.StatusDone
			task := workgraph.NewTask(id, id)
			if err := g.Add(task); err != nil {
				return err
			}
			if err := g.Edit(id, workgraph.Patch{Status: &done}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	iter := 1
	if err := s.Mutate("cycle_iterate", "cycle-iterator", func(g *workgraph.Graph) error {
		for _, id := range []string{"write", "review", "revise"} {
			open := workgraph.StatusOpen
			if err := g.Edit(id, workgraph.Patch{Status: &open, LoopIteration: &iter}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	g, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, id := range []string{"write", "review", "revise"} {
		task, _ := g.Get(id)
		if task.Status != workgraph.StatusOpen || task.LoopIteration != 1 {
			t.Fatalf("%s: status=%s iteration=%d, want open/1 (reopen must be atomic)", id, task.Status, task.LoopIteration)
		}
	}
	ops, _ := s.Operations()
	if ops[len(ops)-1].Op != "cycle_iterate" {
		t.Fatalf("last op = %s, want cycle_iterate", ops[len(ops)-1].Op)
	}
}
