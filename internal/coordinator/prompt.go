package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// contextLogLines bounds how many of a terminal predecessor's log entries
// get folded into the next task's prompt.
const contextLogLines = 5

// PredecessorContext is what a terminal predecessor contributes to a
// dispatched task's prompt.
type PredecessorContext struct {
	TaskID    string
	Status    workgraph.Status
	Artifacts []string
	RecentLog []string
}

func buildContext(g *workgraph.Graph, t *workgraph.Task) []PredecessorContext {
	var ctxs []PredecessorContext
	for _, predID := range t.After {
		pred, ok := g.Get(predID)
		if !ok || !pred.Status.Terminal() {
			continue
		}
		ctxs = append(ctxs, PredecessorContext{
			TaskID:    pred.ID,
			Status:    pred.Status,
			Artifacts: pred.Artifacts,
			RecentLog: recentLogLines(pred, contextLogLines),
		})
	}
	return ctxs
}

func recentLogLines(t *workgraph.Task, n int) []string {
	start := len(t.Log) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(t.Log)-start)
	for _, entry := range t.Log[start:] {
		actor := entry.Actor
		if actor == "" {
			actor = "system"
		}
		out = append(out, fmt.Sprintf("[%s] %s: %s", entry.Timestamp.Format(time.RFC3339), actor, entry.Message))
	}
	return out
}

// buildPrompt renders the identity-free task brief handed to the executor:
// the worker resolves the agent's role/motivation/skills itself (that
// registry is the out-of-scope external collaborator); the
// coordinator's job is the task content and its upstream context.
func buildPrompt(t *workgraph.Task, ctxs []PredecessorContext, convergenceNote string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(&b, "%s\n", t.Description)
	}
	if len(t.Inputs) > 0 {
		fmt.Fprintf(&b, "Inputs: %s\n", strings.Join(t.Inputs, ", "))
	}
	if len(t.Deliverables) > 0 {
		fmt.Fprintf(&b, "Deliverables: %s\n", strings.Join(t.Deliverables, ", "))
	}
	if t.Verify != "" {
		fmt.Fprintf(&b, "Verification criteria: %s\n", t.Verify)
	}
	for _, c := range ctxs {
		fmt.Fprintf(&b, "\n--- context from %s (%s) ---\n", c.TaskID, c.Status)
		if len(c.Artifacts) > 0 {
			fmt.Fprintf(&b, "artifacts: %s\n", strings.Join(c.Artifacts, ", "))
		}
		for _, line := range c.RecentLog {
			fmt.Fprintf(&b, "%s\n", line)
		}
	}
	if convergenceNote != "" {
		fmt.Fprintf(&b, "\n%s\n", convergenceNote)
	}
	return b.String()
}

// convergenceNoteFor returns the note appended for tasks belonging to a
// structural cycle, describing the current iteration and
// how to signal convergence.
func convergenceNoteFor(g *workgraph.Graph, analysis *cycle.Analysis, t *workgraph.Task) string {
	scc, ok := analysis.SCCFor(t.ID)
	if !ok || scc.Trivial() || len(scc.Headers) != 1 {
		return ""
	}
	header, ok := g.Get(scc.Headers[0])
	if !ok || header.CycleConfig == nil {
		return ""
	}
	return fmt.Sprintf(
		"This task is part of a review loop (iteration %d/%d). Complete with --converged when no further iteration is needed.",
		t.LoopIteration, header.CycleConfig.MaxIterations,
	)
}
