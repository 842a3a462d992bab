// Package ready implements the four-condition readiness predicate that
// determines which tasks the coordinator may dispatch on a given tick.
package ready

import (
	"time"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// Clock abstracts time.Now so tests can control it, matching the WithClock
// functional-option convention used elsewhere in this codebase.
type Clock func() time.Time

// IsReady evaluates ready(t) for a single task: open status, not paused,
// both time gates passed, and every predecessor resolved, with back-edge
// exemption for cycle headers.
func IsReady(g *workgraph.Graph, analysis *cycle.Analysis, taskID string, now Clock) bool {
	if now == nil {
		now = time.Now
	}
	t, ok := g.Get(taskID)
	if !ok {
		return false
	}
	return evaluate(g, analysis, t, now)
}

func evaluate(g *workgraph.Graph, analysis *cycle.Analysis, t *workgraph.Task, now Clock) bool {
	if t.Status != workgraph.StatusOpen {
		return false
	}
	if t.Paused {
		return false
	}
	nowTime := now()
	if t.NotBefore != nil && nowTime.Before(*t.NotBefore) {
		return false
	}
	if t.ReadyAfter != nil && nowTime.Before(*t.ReadyAfter) {
		return false
	}
	for _, predID := range t.After {
		pred, exists := g.Get(predID)
		if !exists {
			continue // dangling reference: fail-open, treated as resolved
		}
		if pred.Status.Terminal() {
			continue
		}
		if analysis != nil && analysis.IsBackEdge(t.ID, predID) {
			continue // back-edge exemption: only applies when t is the header
		}
		return false
	}
	return true
}

// ReadyTasks returns every task ID in g for which IsReady holds, in
// insertion order. The coordinator applies its own priority/age/ID ordering
// on top of this set.
func ReadyTasks(g *workgraph.Graph, analysis *cycle.Analysis, now Clock) []string {
	if now == nil {
		now = time.Now
	}
	var ids []string
	for _, t := range g.Tasks() {
		if evaluate(g, analysis, t, now) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
