package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/workgraph/workgraph/internal/agent"
	"github.com/workgraph/workgraph/internal/logbook"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// recoverRegistry reloads agents/registry.json on the first tick after a
// daemon start, so workers spawned by a previous daemon are tracked again:
// live ones keep occupying slots, dead ones get reaped by the normal reap
// phase of the same tick.
func (co *Coordinator) recoverRegistry() error {
	path := filepath.Join(co.cfg.AgentsDir(), "registry.json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var records []agent.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, rec := range records {
		co.registry.Register(rec)
		co.logf("recover: re-tracking pid %d (tag %s, task %s)", rec.PID, rec.Tag, rec.TaskID)
	}
	return nil
}

// reapOrphans unclaims in-progress tasks whose coordinator-issued claim
// tag has no registered process behind it: the snapshot file was lost or
// stale and nothing will ever report on the task's behalf. Claims made by
// humans through the CLI carry their own names rather than proc- tags and
// are left alone.
func (co *Coordinator) reapOrphans(g *workgraph.Graph) ([]string, error) {
	var orphaned []string
	for _, t := range g.Tasks() {
		if t.Status != workgraph.StatusInProgress || !strings.HasPrefix(t.ClaimedBy, "proc-") {
			continue
		}
		if _, tracked := co.registry.Get(t.ClaimedBy); tracked {
			continue
		}
		tag := t.ClaimedBy
		err := co.store.Mutate("unclaim", "coordinator", func(g *workgraph.Graph) error {
			cur, ok := g.Get(t.ID)
			if !ok || cur.Status.Terminal() || cur.ClaimedBy != tag {
				return nil
			}
			open := workgraph.StatusOpen
			return g.Edit(t.ID, workgraph.Patch{
				Status:     &open,
				ClaimedBy:  nilClaim(),
				LogActor:   "coordinator",
				LogMessage: "Unclaimed: no live worker process holds this claim",
			})
		})
		if err != nil {
			return orphaned, fmt.Errorf("reap orphan %s: %w", t.ID, err)
		}
		co.logf("reap: task %s claim %s has no live worker, unclaimed", t.ID, tag)
		orphaned = append(orphaned, t.ID)
	}
	return orphaned, nil
}

// reap checks every registered worker's PID for liveness.
// A process whose PID no longer exists is dropped from the registry and
// its claimed task is returned to open, unless the wrapper already
// transitioned it to a terminal status (the common case: the wrapper's own
// self-report races the reaper's next tick, and the reaper must not
// clobber a status the wrapper already set).
func (co *Coordinator) reap() ([]string, error) {
	var reaped []string
	for _, rec := range co.registry.Snapshot() {
		if agent.PIDAlive(rec.PID) {
			continue
		}
		if err := co.reapOne(rec); err != nil {
			return reaped, err
		}
		reaped = append(reaped, rec.Tag)
	}
	return reaped, nil
}

func (co *Coordinator) reapOne(rec agent.Record) error {
	co.registry.Unregister(rec.Tag)
	co.persistRegistrySnapshot()
	co.logf("reap: pid %d (tag %s, task %s) is dead", rec.PID, rec.Tag, rec.TaskID)
	if lb, err := logbook.New(eventsLogPath(filepath.Dir(rec.OutputLogPath))); err == nil {
		lb.Warn("reaped: pid %d (tag %s) is no longer alive", rec.PID, rec.Tag)
	}

	err := co.store.Mutate("unclaim", "coordinator", func(g *workgraph.Graph) error {
		t, ok := g.Get(rec.TaskID)
		if !ok {
			return nil // task was removed out from under the worker; nothing to unclaim
		}
		if t.Status.Terminal() {
			return nil // wrapper already self-reported; don't reopen a finished task
		}
		if t.ClaimedBy != rec.Tag {
			return nil // claim changed hands since this record was made; leave it alone
		}
		open := workgraph.StatusOpen
		return g.Edit(rec.TaskID, workgraph.Patch{
			Status:     &open,
			ClaimedBy:  nilClaim(),
			LogActor:   "coordinator",
			LogMessage: fmt.Sprintf("Unclaimed: worker process %d is no longer alive", rec.PID),
		})
	})
	if err != nil {
		return fmt.Errorf("reap %s: %w", rec.Tag, err)
	}

	if co.cfg.AutoTriage() {
		if err := co.enqueueTriage(rec); err != nil {
			return fmt.Errorf("reap %s: triage: %w", rec.Tag, err)
		}
	}
	return nil
}

// enqueueTriage creates a triage task for a dead agent. Reading the
// agent's output log and classifying done|continue|restart is the job of
// an external collaborator; the coordinator's only obligation is to hand
// it the task and the log path it needs.
func (co *Coordinator) enqueueTriage(rec agent.Record) error {
	triageID := "triage-" + rec.TaskID
	return co.store.Mutate("task_create", "coordinator", func(g *workgraph.Graph) error {
		if _, exists := g.Get(triageID); exists {
			return nil
		}
		t := workgraph.NewTask(triageID, "Triage dead agent for "+rec.TaskID)
		t.Tags = []string{"meta:triage"}
		t.Description = "classify done|continue|restart from " + rec.OutputLogPath
		t.Inputs = []string{rec.OutputLogPath}
		return g.Add(t)
	})
}

func nilClaim() **string {
	var p *string
	return &p
}
