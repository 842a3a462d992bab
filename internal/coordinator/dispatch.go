package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/workgraph/workgraph/internal/agent"
	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/executor"
	"github.com/workgraph/workgraph/internal/logbook"
	"github.com/workgraph/workgraph/internal/ready"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// selectReady computes the ready set and orders it by (a) presence of the
// "priority" tag, (b) age (insertion order in the store, oldest first),
// (c) lexicographic ID, taking the first `available` entries.
func (co *Coordinator) selectReady(g *workgraph.Graph, analysis *cycle.Analysis, available int) []string {
	ids := ready.ReadyTasks(g, analysis, ready.Clock(co.clock))
	if len(ids) == 0 {
		return nil
	}

	age := make(map[string]int, g.Len())
	priority := make(map[string]bool, len(ids))
	for i, t := range g.Tasks() {
		age[t.ID] = i
		priority[t.ID] = hasTag(t, "priority")
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if priority[a] != priority[b] {
			return priority[a]
		}
		if age[a] != age[b] {
			return age[a] < age[b]
		}
		return a < b
	})

	if len(ids) > available {
		ids = ids[:available]
	}
	return ids
}

// dispatchAll dispatches each selected task in order, stopping neither on
// an individual claim race nor an individual spawn failure: those are
// surfaced per-task (ExecutorFailure) rather than aborting the tick.
func (co *Coordinator) dispatchAll(g *workgraph.Graph, selected []string) ([]string, error) {
	var dispatched []string
	for _, id := range selected {
		ok, err := co.dispatchOne(g, id)
		if err != nil {
			co.logf("dispatch %s: %v", id, err)
			continue
		}
		if ok {
			dispatched = append(dispatched, id)
		}
	}
	return dispatched, nil
}

// dispatchOne resolves the executor and model, builds the prompt, writes
// the wrapper script, claims the task, and forks the detached process.
// Claim happens before fork so a concurrent CLI invocation can never
// observe the task as ready and dispatch it a second time.
func (co *Coordinator) dispatchOne(g *workgraph.Graph, id string) (bool, error) {
	t, ok := g.Get(id)
	if !ok {
		return false, nil
	}

	analysis := co.cycleCache.Get(g)
	execName := executor.ResolveName(t.Exec, t.Agent, co.agents, co.cfg.DefaultExecutor())
	model := executor.ResolveModel(t.Model, t.Agent, co.model, co.agents)
	def, err := co.executors.Resolve(execName)
	if err != nil {
		return false, fmt.Errorf("resolve executor %q: %w", execName, err)
	}

	ctxs := buildContext(g, t)
	note := convergenceNoteFor(g, analysis, t)
	prompt := buildPrompt(t, ctxs, note)

	command, err := def.Render(executor.RenderData{TaskID: t.ID, Exec: t.Exec, Model: model, Prompt: prompt})
	if err != nil {
		return false, fmt.Errorf("render command: %w", err)
	}
	if strings.TrimSpace(command) == "" {
		return false, fmt.Errorf("executor %q rendered an empty command", execName)
	}

	timeout, err := def.TimeoutDuration()
	if err != nil {
		return false, fmt.Errorf("executor %q: %w", execName, err)
	}

	tag := newProcessTag()
	workDir := filepath.Join(co.cfg.AgentsDir(), t.ID)
	outputLog := filepath.Join(workDir, "output.log")

	wrapperPath, err := agent.WriteWrapper(agent.WrapperData{
		TaskID:         t.ID,
		Command:        command,
		WorkDir:        workDir,
		OutputLog:      outputLog,
		CLIPath:        co.cliPath,
		ProjectDir:     co.cfg.ProjectDir,
		TimeoutSeconds: int64(timeout.Seconds()),
	})
	if err != nil {
		return false, fmt.Errorf("write wrapper: %w", err)
	}

	claimed, err := co.claim(id, tag, execName)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return false, nil // lost the race to another dispatcher; not an error
	}

	pid, err := co.spawn(wrapperPath)
	if err != nil {
		// ExecutorFailure: unclaim so the task doesn't linger in-progress.
		co.unclaim(id, tag, fmt.Sprintf("spawn failed: %v", err))
		return false, fmt.Errorf("spawn: %w", err)
	}

	co.registry.Register(agent.Record{
		Tag:           tag,
		PID:           pid,
		TaskID:        id,
		StartedAt:     co.clock(),
		Executor:      execName,
		OutputLogPath: outputLog,
		LastHeartbeat: co.clock(),
	})
	co.logf("dispatch: task %s -> pid %d (tag %s, executor %s)", id, pid, tag, execName)
	if lb, err := logbook.New(eventsLogPath(workDir)); err == nil {
		lb.Info("dispatched pid=%d tag=%s executor=%s model=%s", pid, tag, execName, model)
	}
	co.persistRegistrySnapshot()
	return true, nil
}

// persistRegistrySnapshot mirrors the in-memory registry to
// agents/registry.json. Best-effort: a write failure is only logged. After
// a daemon restart, recoverRegistry reloads this file on the first tick.
func (co *Coordinator) persistRegistrySnapshot() {
	data, err := co.registry.MarshalSnapshot()
	if err != nil {
		co.logf("registry snapshot: %v", err)
		return
	}
	path := filepath.Join(co.cfg.AgentsDir(), "registry.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		co.logf("registry snapshot: %v", err)
	}
}

// eventsLogPath is the per-task lifecycle logbook, kept alongside the
// wrapper's own output.log so a human reading an agent's work directory
// sees both the raw executor output and a record of what the coordinator
// did to it.
func eventsLogPath(workDir string) string {
	return filepath.Join(workDir, "events.log")
}

// claim sets status=in-progress/claimed_by=tag, but only if the task is
// still open; it reports false (no error) if another dispatcher already
// claimed it since selection.
func (co *Coordinator) claim(id, tag, execName string) (bool, error) {
	claimedHere := false
	err := co.store.Mutate("claim", tag, func(g *workgraph.Graph) error {
		t, ok := g.Get(id)
		if !ok || t.Status != workgraph.StatusOpen {
			return nil
		}
		inProgress := workgraph.StatusInProgress
		claimedBy := tag
		patch := workgraph.Patch{
			Status:     &inProgress,
			ClaimedBy:  claimPatch(claimedBy),
			LogActor:   "coordinator",
			LogMessage: fmt.Sprintf("Claimed by %s (executor %s)", tag, execName),
		}
		if err := g.Edit(id, patch); err != nil {
			return err
		}
		claimedHere = true
		return nil
	})
	return claimedHere, err
}

func (co *Coordinator) unclaim(id, tag, reason string) {
	err := co.store.Mutate("unclaim", "coordinator", func(g *workgraph.Graph) error {
		t, ok := g.Get(id)
		if !ok || t.ClaimedBy != tag {
			return nil
		}
		open := workgraph.StatusOpen
		return g.Edit(id, workgraph.Patch{
			Status:     &open,
			ClaimedBy:  nilClaim(),
			LogActor:   "coordinator",
			LogMessage: "Unclaimed: " + reason,
		})
	})
	if err != nil {
		co.logf("unclaim %s: %v", id, err)
	}
}

func claimPatch(tag string) **string {
	p := &tag
	return &p
}

// SpawnNow dispatches one task immediately, bypassing ready selection
// (the IPC `spawn` command).
func (co *Coordinator) SpawnNow(taskID string) (bool, error) {
	co.tickMu.Lock()
	defer co.tickMu.Unlock()

	g, err := co.store.Load()
	if err != nil {
		return false, fmt.Errorf("coordinator: load graph: %w", err)
	}
	co.cycleCache.Get(g)
	return co.dispatchOne(g, taskID)
}
