package app

import (
	"fmt"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// transition applies a terminal status change to id, clearing claimed_by
// (non-empty iff in-progress), optionally tags
// the task's cycle header converged, and then runs the cycle iterator so a
// cycle whose members just all went terminal re-opens within the same
// mutation. The claim and log history survive in the task's own Log field
// and in operations.jsonl; only the live claimed_by pointer is cleared.
func (a *App) transition(id string, status workgraph.Status, actor, message string, converged bool) error {
	if !status.Terminal() {
		return fmt.Errorf("app: transition: status %q is not terminal", status)
	}
	return a.Store.Mutate("status_change", actor, func(g *workgraph.Graph) error {
		patch := workgraph.Patch{
			Status:     &status,
			ClaimedBy:  nilClaim(),
			LogActor:   actor,
			LogMessage: message,
		}
		if err := g.Edit(id, patch); err != nil {
			return err
		}

		analysis := cycle.Analyze(g)
		if converged {
			if err := cycle.MarkConverged(g, analysis, id); err != nil {
				return err
			}
			analysis = cycle.Analyze(g)
		}
		_, err := cycle.Iterate(g, analysis, id)
		return err
	})
}

// Done marks id complete. converged, if true, stops further iteration of
// id's cycle regardless of remaining budget or guard (`done --converged`).
func (a *App) Done(id, actor string, converged bool) error {
	msg := "Marked done"
	if converged {
		msg = "Marked done (converged)"
	}
	if err := a.transition(id, workgraph.StatusDone, actor, msg, converged); err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}

// Fail marks id failed, recording reason in the task's log.
func (a *App) Fail(id, actor, reason string) error {
	if err := a.transition(id, workgraph.StatusFailed, actor, "Failed: "+reason, false); err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}

// Abandon marks id abandoned, recording reason in the task's log.
func (a *App) Abandon(id, actor, reason string) error {
	if err := a.transition(id, workgraph.StatusAbandoned, actor, "Abandoned: "+reason, false); err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}

// Retry resets a terminal task back to open, clears its claim, and clears
// the "converged" tag from its cycle header so future iterations are not
// suppressed by an earlier completion.
func (a *App) Retry(id, actor string) error {
	err := a.Store.Mutate("retry", actor, func(g *workgraph.Graph) error {
		t, ok := g.Get(id)
		if !ok {
			return &workgraph.NotFoundError{ID: id}
		}
		if !t.Status.Terminal() {
			return fmt.Errorf("app: retry: task %q is not in a terminal status (status=%s)", id, t.Status)
		}
		open := workgraph.StatusOpen
		if err := g.Edit(id, workgraph.Patch{
			Status:     &open,
			ClaimedBy:  nilClaim(),
			LogActor:   actor,
			LogMessage: "Retried",
		}); err != nil {
			return err
		}
		analysis := cycle.Analyze(g)
		return cycle.ClearConverged(g, analysis, id)
	})
	if err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}

// Claim manually claims an open task for claimant, used by human
// operators outside the coordinator's own dispatch path.
func (a *App) Claim(id, claimant, actor string) error {
	err := a.Store.Mutate("claim", actor, func(g *workgraph.Graph) error {
		t, ok := g.Get(id)
		if !ok {
			return &workgraph.NotFoundError{ID: id}
		}
		if t.Status != workgraph.StatusOpen {
			return fmt.Errorf("app: claim: task %q is not open (status=%s)", id, t.Status)
		}
		inProgress := workgraph.StatusInProgress
		return g.Edit(id, workgraph.Patch{
			Status:     &inProgress,
			ClaimedBy:  claimValue(claimant),
			LogActor:   actor,
			LogMessage: fmt.Sprintf("Claimed by %s", claimant),
		})
	})
	if err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}

// Unclaim releases a task back to open without a terminal verdict.
func (a *App) Unclaim(id, actor, reason string) error {
	err := a.Store.Mutate("unclaim", actor, func(g *workgraph.Graph) error {
		t, ok := g.Get(id)
		if !ok {
			return &workgraph.NotFoundError{ID: id}
		}
		if t.Status != workgraph.StatusInProgress {
			return fmt.Errorf("app: unclaim: task %q is not in-progress (status=%s)", id, t.Status)
		}
		open := workgraph.StatusOpen
		msg := "Unclaimed"
		if reason != "" {
			msg = "Unclaimed: " + reason
		}
		return g.Edit(id, workgraph.Patch{
			Status:     &open,
			ClaimedBy:  nilClaim(),
			LogActor:   actor,
			LogMessage: msg,
		})
	})
	if err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}
