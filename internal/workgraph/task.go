// Package workgraph implements the task graph data model: tasks, edges,
// cycle configuration, and the mutation API that enforces the model's
// invariants.
package workgraph

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the closed set of states a task may occupy.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
	StatusBlocked    Status = "blocked"
)

// Terminal reports whether the status belongs to {done, failed, abandoned}.
// Terminal tasks unblock dependents and never transition without explicit
// intervention (retry, cycle re-opening, manual edit).
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

func (s Status) valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusFailed, StatusAbandoned, StatusBlocked:
		return true
	default:
		return false
	}
}

// Visibility controls who may observe a task outside its owning project.
type Visibility string

const (
	VisibilityInternal Visibility = "internal"
	VisibilityPublic   Visibility = "public"
	VisibilityPeer     Visibility = "peer"
)

// GuardKind tags the variant carried by a Guard.
type GuardKind string

const (
	GuardAlways            GuardKind = "always"
	GuardTaskStatus        GuardKind = "task_status"
	GuardIterationLessThan GuardKind = "iteration_less_than"
)

// Guard is the tagged variant controlling whether a cycle re-opens once all
// of its members have reached a terminal status. A zero-value Guard (empty
// Kind) behaves as GuardAlways.
type Guard struct {
	Kind GuardKind `json:"-"`

	// TaskStatus fields, populated when Kind == GuardTaskStatus.
	TaskID string `json:"-"`
	Status Status `json:"-"`

	// IterationLessThan field, populated when Kind == GuardIterationLessThan.
	N int `json:"-"`
}

func (g Guard) kind() GuardKind {
	if g.Kind == "" {
		return GuardAlways
	}
	return g.Kind
}

// Variant returns the guard's kind, with the zero value normalized to
// GuardAlways.
func (g Guard) Variant() GuardKind { return g.kind() }

type guardTaskStatus struct {
	Task   string `json:"task"`
	Status Status `json:"status"`
}

type guardIterationLessThan struct {
	N int `json:"n"`
}

// guardEnvelope is the externally-tagged wire shape guards take in
// graph.jsonl: "Always" serializes as a bare string, the other variants as
// a single-key object naming the variant.
type guardEnvelope struct {
	TaskStatus        *guardTaskStatus        `json:"TaskStatus,omitempty"`
	IterationLessThan *guardIterationLessThan `json:"IterationLessThan,omitempty"`
}

// MarshalJSON writes the externally-tagged variant form used on disk.
func (g Guard) MarshalJSON() ([]byte, error) {
	switch g.kind() {
	case GuardTaskStatus:
		return json.Marshal(guardEnvelope{TaskStatus: &guardTaskStatus{Task: g.TaskID, Status: g.Status}})
	case GuardIterationLessThan:
		return json.Marshal(guardEnvelope{IterationLessThan: &guardIterationLessThan{N: g.N}})
	default:
		return json.Marshal("Always")
	}
}

// UnmarshalJSON accepts the bare "Always" string or a single-key variant
// object.
func (g *Guard) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Always" && s != "always" {
			return fmt.Errorf("workgraph: unknown guard %q", s)
		}
		*g = Guard{Kind: GuardAlways}
		return nil
	}
	var env guardEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("workgraph: parse guard: %w", err)
	}
	switch {
	case env.TaskStatus != nil:
		*g = Guard{Kind: GuardTaskStatus, TaskID: env.TaskStatus.Task, Status: env.TaskStatus.Status}
	case env.IterationLessThan != nil:
		*g = Guard{Kind: GuardIterationLessThan, N: env.IterationLessThan.N}
	default:
		*g = Guard{Kind: GuardAlways}
	}
	return nil
}

// CycleConfig is meaningful only on cycle headers: the unique member of a
// structural cycle that carries this field.
type CycleConfig struct {
	MaxIterations int    `json:"max_iterations"`
	Guard         *Guard `json:"guard,omitempty"`
	Delay         string `json:"delay,omitempty"`
}

// LogEntry is one append-only record in a task's log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
	Message   string    `json:"message"`
}

// Task is the graph's node. Id is immutable once created; every other field
// may be mutated through Graph.Edit.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Estimate    *float64 `json:"estimate,omitempty"`

	Tags        []string `json:"tags,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`

	Exec  string `json:"exec,omitempty"`
	Model string `json:"model,omitempty"`
	Verify string `json:"verify,omitempty"`
	Agent string `json:"agent,omitempty"`

	// After is the authoritative dependency list: this task runs after
	// every task ID named here.
	After []string `json:"after,omitempty"`

	// Before is the derived inverse of After across all tasks. It is an
	// index maintained by Graph, never a source of truth, and is not
	// written to the canonical store record (see store.taskRecord).
	Before []string `json:"-"`

	Paused bool `json:"paused,omitempty"`

	NotBefore  *time.Time `json:"not_before,omitempty"`
	ReadyAfter *time.Time `json:"ready_after,omitempty"`

	LoopIteration int          `json:"loop_iteration"`
	CycleConfig   *CycleConfig `json:"cycle_config,omitempty"`

	Visibility Visibility `json:"visibility,omitempty"`

	Log []LogEntry `json:"log,omitempty"`

	ClaimedBy string `json:"claimed_by,omitempty"`

	// Unknown carries fields the store saw on load that this version of
	// the model doesn't recognize, so they round-trip unchanged.
	Unknown map[string]any `json:"-"`
}

func (t *Task) hasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

func (t *Task) addTag(tag string) {
	if t.hasTag(tag) {
		return
	}
	t.Tags = append(t.Tags, tag)
}

func (t *Task) removeTag(tag string) {
	out := t.Tags[:0]
	for _, existing := range t.Tags {
		if existing != tag {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		t.Tags = nil
		return
	}
	t.Tags = out
}

// Converged reports whether this task (expected to be a cycle header)
// carries the "converged" tag.
func (t *Task) Converged() bool {
	return t.hasTag("converged")
}

func (t *Task) appendLog(actor, message string) {
	t.Log = append(t.Log, LogEntry{Timestamp: time.Now().UTC(), Actor: actor, Message: message})
}

// Clone returns a deep copy sufficient for safe external handout.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Tags = cloneStrings(t.Tags)
	clone.Skills = cloneStrings(t.Skills)
	clone.Inputs = cloneStrings(t.Inputs)
	clone.Deliverables = cloneStrings(t.Deliverables)
	clone.Artifacts = cloneStrings(t.Artifacts)
	clone.After = cloneStrings(t.After)
	clone.Before = cloneStrings(t.Before)
	if t.Estimate != nil {
		v := *t.Estimate
		clone.Estimate = &v
	}
	if t.NotBefore != nil {
		v := *t.NotBefore
		clone.NotBefore = &v
	}
	if t.ReadyAfter != nil {
		v := *t.ReadyAfter
		clone.ReadyAfter = &v
	}
	if t.CycleConfig != nil {
		cc := *t.CycleConfig
		if t.CycleConfig.Guard != nil {
			g := *t.CycleConfig.Guard
			cc.Guard = &g
		}
		clone.CycleConfig = &cc
	}
	if len(t.Log) > 0 {
		clone.Log = make([]LogEntry, len(t.Log))
		copy(clone.Log, t.Log)
	}
	if len(t.Unknown) > 0 {
		clone.Unknown = make(map[string]any, len(t.Unknown))
		for k, v := range t.Unknown {
			clone.Unknown[k] = v
		}
	}
	return &clone
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
