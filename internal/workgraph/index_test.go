package workgraph

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

// TestInverseIndexFaithfulAfterRandomEdits checks that after any sequence
// of add/edit/remove operations, before[x] is exactly the set of tasks
// whose after list names x.
func TestInverseIndexFaithfulAfterRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		g := New()
		var ids []string
		nextID := 0

		ops := 20 + rng.Intn(30)
		for i := 0; i < ops; i++ {
			switch {
			case len(ids) < 3 || rng.Intn(4) == 0: // add
				id := fmt.Sprintf("n%d", nextID)
				nextID++
				task := NewTask(id, id)
				for _, pred := range pickSome(rng, ids, 2) {
					task.After = append(task.After, pred)
				}
				if err := g.Add(task); err != nil {
					t.Fatalf("trial %d: add %s: %v", trial, id, err)
				}
				ids = append(ids, id)

			case rng.Intn(5) == 0 && len(ids) > 3: // remove
				victim := ids[rng.Intn(len(ids))]
				if err := g.Remove(victim); err != nil {
					t.Fatalf("trial %d: remove %s: %v", trial, victim, err)
				}
				ids = without(ids, victim)

			default: // edit after edges
				target := ids[rng.Intn(len(ids))]
				patch := Patch{}
				if rng.Intn(2) == 0 {
					patch.AddAfter = pickSome(rng, ids, 2)
				} else {
					cur, _ := g.Get(target)
					patch.RemoveAfter = pickSome(rng, cur.After, 2)
				}
				if err := g.Edit(target, patch); err != nil {
					t.Fatalf("trial %d: edit %s: %v", trial, target, err)
				}
			}
		}

		assertBeforeIsTranspose(t, g, trial)
	}
}

func assertBeforeIsTranspose(t *testing.T, g *Graph, trial int) {
	t.Helper()
	tasks := g.Tasks()
	expected := make(map[string][]string)
	for _, task := range tasks {
		for _, pred := range task.After {
			expected[pred] = append(expected[pred], task.ID)
		}
	}
	for id := range expected {
		sort.Strings(expected[id])
	}
	for _, task := range tasks {
		want := expected[task.ID]
		got := append([]string(nil), task.Before...)
		sort.Strings(got)
		if len(got) != len(want) {
			t.Fatalf("trial %d: before[%s] = %v, want %v", trial, task.ID, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("trial %d: before[%s] = %v, want %v", trial, task.ID, got, want)
			}
		}
	}
}

func pickSome(rng *rand.Rand, pool []string, max int) []string {
	if len(pool) == 0 || max <= 0 {
		return nil
	}
	n := rng.Intn(max + 1)
	var out []string
	for i := 0; i < n; i++ {
		out = append(out, pool[rng.Intn(len(pool))])
	}
	return out
}

func without(values []string, drop string) []string {
	out := values[:0]
	for _, v := range values {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
