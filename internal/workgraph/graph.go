package workgraph

import (
	"fmt"
	"sort"
	"time"
)

// Graph is the in-memory task graph. It owns every Task by value reference;
// external callers address tasks by ID, never by pointer into the graph's
// own storage (callers receive clones).
type Graph struct {
	tasks map[string]*Task
	order []string // insertion order, for deterministic listing
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{tasks: make(map[string]*Task)}
}

// Get returns a clone of the task with the given ID.
func (g *Graph) Get(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.tasks) }

// Tasks returns clones of every task, in insertion order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		if t, ok := g.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Add inserts a new task. It rejects duplicate IDs and registers the task in
// every predecessor's inverse (before) index.
func (g *Graph) Add(t *Task) error {
	if t == nil || t.ID == "" {
		return newInvariantError("task id must not be empty")
	}
	if _, exists := g.tasks[t.ID]; exists {
		return &DuplicateIDError{ID: t.ID}
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if !t.Status.valid() {
		return newInvariantError("unknown status %q", t.Status)
	}
	if err := validateClaim(t); err != nil {
		return err
	}
	if err := validateCycleConfig(t.CycleConfig); err != nil {
		return err
	}
	clone := t.Clone()
	g.tasks[clone.ID] = clone
	g.order = append(g.order, clone.ID)
	g.reindexBefore()
	return nil
}

// Remove deletes the task and purges its own inbound/outbound edges from the
// before index. References *to* the task from other tasks' after lists are
// left as dangling references (explicitly legal).
func (g *Graph) Remove(id string) error {
	if _, ok := g.tasks[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(g.tasks, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.reindexBefore()
	return nil
}

// Patch describes a partial mutation applied by Edit. Nil fields are left
// unchanged. Slice-replacement fields (Tags, After, ...) replace the field
// wholesale when non-nil; Add/Remove convenience fields apply incrementally.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
	Estimate    **float64
	Exec        *string
	Model       *string
	Verify      *string
	Agent       *string

	Tags         *[]string
	Skills       *[]string
	Inputs       *[]string
	Deliverables *[]string
	Artifacts    *[]string

	AddAfter    []string
	RemoveAfter []string
	After       *[]string

	AddTags    []string
	RemoveTags []string

	Paused *bool

	NotBefore  **time.Time
	ReadyAfter **time.Time

	LoopIteration *int
	CycleConfig   **CycleConfig

	ClaimedBy **string

	LogActor   string
	LogMessage string
}

// Edit applies patch to the task identified by id. The mutation is validated
// against the invariant model before it is committed; on failure the graph
// is left untouched.
func (g *Graph) Edit(id string, patch Patch) error {
	existing, ok := g.tasks[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	working := existing.Clone()
	applyPatch(working, patch)

	if !working.Status.valid() {
		return newInvariantError("unknown status %q", working.Status)
	}
	if err := validateClaim(working); err != nil {
		return err
	}
	if err := validateCycleConfig(working.CycleConfig); err != nil {
		return err
	}
	if patch.LogMessage != "" {
		working.appendLog(patch.LogActor, patch.LogMessage)
	}

	afterChanged := patch.After != nil || len(patch.AddAfter) > 0 || len(patch.RemoveAfter) > 0
	g.tasks[id] = working
	if afterChanged {
		g.reindexBefore()
	}
	return nil
}

func applyPatch(t *Task, p Patch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Estimate != nil {
		t.Estimate = *p.Estimate
	}
	if p.Exec != nil {
		t.Exec = *p.Exec
	}
	if p.Model != nil {
		t.Model = *p.Model
	}
	if p.Verify != nil {
		t.Verify = *p.Verify
	}
	if p.Agent != nil {
		t.Agent = *p.Agent
	}
	if p.Tags != nil {
		t.Tags = cloneStrings(*p.Tags)
	}
	if p.Skills != nil {
		t.Skills = cloneStrings(*p.Skills)
	}
	if p.Inputs != nil {
		t.Inputs = cloneStrings(*p.Inputs)
	}
	if p.Deliverables != nil {
		t.Deliverables = cloneStrings(*p.Deliverables)
	}
	if p.Artifacts != nil {
		t.Artifacts = cloneStrings(*p.Artifacts)
	}
	if p.After != nil {
		t.After = cloneStrings(*p.After)
	}
	for _, id := range p.AddAfter {
		if !containsString(t.After, id) {
			t.After = append(t.After, id)
		}
	}
	if len(p.RemoveAfter) > 0 {
		t.After = removeStrings(t.After, p.RemoveAfter)
	}
	for _, tag := range p.AddTags {
		t.addTag(tag)
	}
	for _, tag := range p.RemoveTags {
		t.removeTag(tag)
	}
	if p.Paused != nil {
		t.Paused = *p.Paused
	}
	if p.NotBefore != nil {
		t.NotBefore = *p.NotBefore
	}
	if p.ReadyAfter != nil {
		t.ReadyAfter = *p.ReadyAfter
	}
	if p.LoopIteration != nil {
		t.LoopIteration = *p.LoopIteration
	}
	if p.CycleConfig != nil {
		t.CycleConfig = *p.CycleConfig
	}
	if p.ClaimedBy != nil {
		if *p.ClaimedBy == nil {
			t.ClaimedBy = ""
		} else {
			t.ClaimedBy = **p.ClaimedBy
		}
	}
}

func validateClaim(t *Task) error {
	hasClaim := t.ClaimedBy != ""
	inProgress := t.Status == StatusInProgress
	if hasClaim && !inProgress {
		return newInvariantError("task %q has claimed_by set but status is %q, not in-progress", t.ID, t.Status)
	}
	return nil
}

func validateCycleConfig(cc *CycleConfig) error {
	if cc == nil {
		return nil
	}
	if cc.MaxIterations < 1 {
		return newInvariantError("cycle_config.max_iterations must be >= 1")
	}
	if cc.Delay != "" {
		if _, err := ParseDuration(cc.Delay); err != nil {
			return newInvariantError("cycle_config.delay: %v", err)
		}
	}
	return nil
}

// reindexBefore rebuilds the before index for every task from the current
// after edges. before is always the exact transpose of after.
func (g *Graph) reindexBefore() {
	inverse := make(map[string][]string, len(g.tasks))
	for _, id := range g.order {
		t := g.tasks[id]
		for _, pred := range t.After {
			inverse[pred] = append(inverse[pred], id)
		}
	}
	for id := range inverse {
		sort.Strings(inverse[id])
	}
	for _, id := range g.order {
		g.tasks[id].Before = inverse[id]
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func removeStrings(values []string, remove []string) []string {
	if len(values) == 0 {
		return values
	}
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[r] = struct{}{}
	}
	out := values[:0]
	for _, v := range values {
		if _, skip := drop[v]; !skip {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Finding is one issue surfaced by Check.
type Finding struct {
	Severity string `json:"severity"` // "warning" or "error"
	Code     string `json:"code"`
	TaskID   string `json:"task_id,omitempty"`
	Message  string `json:"message"`
}

// Check runs the graph-local validations: dangling references, self-loops,
// and cycle configs with a missing or zero max_iterations. SCC-level
// findings (unconfigured or multiply-configured cycle headers) are the
// responsibility of the cycle package, which composes with these findings
// at the call site (see cmd/workgraph's check command) to avoid a package
// cycle between workgraph and cycle.
func (g *Graph) Check() []Finding {
	var findings []Finding
	for _, id := range g.order {
		t := g.tasks[id]
		for _, pred := range t.After {
			if pred == t.ID {
				findings = append(findings, Finding{
					Severity: "warning", Code: "self-loop", TaskID: t.ID,
					Message: fmt.Sprintf("task %q lists itself in after", t.ID),
				})
				continue
			}
			if _, ok := g.tasks[pred]; !ok {
				findings = append(findings, Finding{
					Severity: "warning", Code: "dangling-reference", TaskID: t.ID,
					Message: fmt.Sprintf("task %q has after-reference to missing task %q (treated as resolved)", t.ID, pred),
				})
			}
		}
		if t.CycleConfig != nil {
			if t.CycleConfig.MaxIterations < 1 {
				findings = append(findings, Finding{
					Severity: "error", Code: "cycle-max-iterations-invalid", TaskID: t.ID,
					Message: fmt.Sprintf("cycle header %q has max_iterations < 1", t.ID),
				})
			}
		}
	}
	return findings
}
