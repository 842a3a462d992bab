package coordinator

import (
	"fmt"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/ready"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// metaAssignTag and metaEvaluateTag mark coordinator-generated meta-tasks
// so the auto-generators never recurse onto their own output: a meta-task
// never spawns a meta-task of its own.
const (
	metaAssignTag   = "meta:assign"
	metaEvaluateTag = "meta:evaluate"
)

// autoAssign creates an assign-<id> meta-task for every ready task that
// lacks an agent assignment and doesn't already have one pending.
func (co *Coordinator) autoAssign(g *workgraph.Graph, analysis *cycle.Analysis) ([]string, error) {
	var created []string
	now := co.clock
	for _, id := range ready.ReadyTasks(g, analysis, ready.Clock(now)) {
		t, ok := g.Get(id)
		if !ok || t.Agent != "" || hasTag(t, metaAssignTag) || hasTag(t, metaEvaluateTag) {
			continue
		}
		metaID := "assign-" + id
		if _, exists := g.Get(metaID); exists {
			continue
		}
		err := co.store.Mutate("task_create", "coordinator", func(g *workgraph.Graph) error {
			if _, exists := g.Get(metaID); exists {
				return nil
			}
			// No after-edge on the target: the assignment has to run while
			// the target is still open, not once it finishes.
			meta := workgraph.NewTask(metaID, "Assign agent for "+t.Title)
			meta.Tags = []string{metaAssignTag}
			meta.Description = "select and attach an agent identity for task " + id
			return g.Add(meta)
		})
		if err != nil {
			return created, fmt.Errorf("auto-assign %s: %w", id, err)
		}
		created = append(created, metaID)
	}
	return created, nil
}

// autoEvaluate creates an evaluate-<id> meta-task for every task that has
// just reached a terminal status since the previous tick,
// skipping tasks whose agent is flagged human and tasks that already have
// a pending evaluation.
func (co *Coordinator) autoEvaluate(g *workgraph.Graph) ([]string, error) {
	var created []string
	current := make(map[string]workgraph.Status, g.Len())
	for _, t := range g.Tasks() {
		current[t.ID] = t.Status
		prev, seen := co.prevStatus[t.ID]
		justTerminal := t.Status.Terminal() && (!seen || !prev.Terminal())
		if !justTerminal || hasTag(t, metaAssignTag) || hasTag(t, metaEvaluateTag) {
			continue
		}
		if t.Agent != "" && co.agents != nil && co.agents.Human(t.Agent) {
			continue
		}
		metaID := "evaluate-" + t.ID
		if _, exists := g.Get(metaID); exists {
			continue
		}
		taskID := t.ID
		taskTitle := t.Title
		err := co.store.Mutate("task_create", "coordinator", func(g *workgraph.Graph) error {
			if _, exists := g.Get(metaID); exists {
				return nil
			}
			meta := workgraph.NewTask(metaID, "Evaluate "+taskTitle)
			meta.Tags = []string{metaEvaluateTag}
			meta.Description = "score the completed work on task " + taskID
			meta.After = []string{taskID}
			return g.Add(meta)
		})
		if err != nil {
			return created, fmt.Errorf("auto-evaluate %s: %w", taskID, err)
		}
		created = append(created, metaID)
	}
	co.prevStatus = current
	return created, nil
}

func hasTag(t *workgraph.Task, tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}
