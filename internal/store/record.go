// Package store persists a workgraph.Graph to a JSONL file under exclusive
// advisory locking, and appends every mutation to a parallel audit log.
package store

import (
	"encoding/json"
	"time"

	"github.com/workgraph/workgraph/internal/workgraph"
)

// recordKind distinguishes lines in graph.jsonl. "task" is the only kind
// defined today; the field exists so future line kinds can share the file.
const recordKind = "task"

// taskRecord is the on-disk shape of one graph.jsonl line. It round-trips
// unknown fields (schema evolution) and accepts the historical
// blocked_by alias for After.
type taskRecord struct {
	Kind string `json:"kind"`

	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Estimate    *float64 `json:"estimate,omitempty"`

	Tags         []string `json:"tags,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Inputs       []string `json:"inputs,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
	Artifacts    []string `json:"artifacts,omitempty"`

	Exec   string `json:"exec,omitempty"`
	Model  string `json:"model,omitempty"`
	Verify string `json:"verify,omitempty"`
	Agent  string `json:"agent,omitempty"`

	After     []string `json:"after,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"` // legacy alias, accepted on read only

	Paused bool `json:"paused,omitempty"`

	NotBefore  *time.Time `json:"not_before,omitempty"`
	ReadyAfter *time.Time `json:"ready_after,omitempty"`

	LoopIteration int                    `json:"loop_iteration"`
	CycleConfig   *workgraph.CycleConfig `json:"cycle_config,omitempty"`

	Visibility string              `json:"visibility,omitempty"`
	Log        []workgraph.LogEntry `json:"log,omitempty"`
	ClaimedBy  string              `json:"claimed_by,omitempty"`

	// Unknown holds fields present on the line that this version of the
	// record doesn't model. They round-trip to the next write unchanged.
	Unknown map[string]json.RawMessage `json:"-"`
}

// knownRecordFields are the JSON keys UnmarshalJSON recognizes; everything
// else on a line is carried through Unknown.
var knownRecordFields = map[string]struct{}{
	"kind": {}, "id": {}, "title": {}, "description": {}, "status": {},
	"estimate": {}, "tags": {}, "skills": {}, "inputs": {}, "deliverables": {},
	"artifacts": {}, "exec": {}, "model": {}, "verify": {}, "agent": {},
	"after": {}, "blocked_by": {}, "paused": {}, "not_before": {},
	"ready_after": {}, "loop_iteration": {}, "cycle_config": {},
	"visibility": {}, "log": {}, "claimed_by": {},
}

func (r *taskRecord) UnmarshalJSON(data []byte) error {
	type plain taskRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if _, known := knownRecordFields[key]; known {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		p.Unknown = raw
	}
	*r = taskRecord(p)
	return nil
}

func (r taskRecord) MarshalJSON() ([]byte, error) {
	type plain taskRecord
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Unknown) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Unknown {
		if _, taken := merged[key]; !taken {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

func recordFromTask(t *workgraph.Task) taskRecord {
	var unknown map[string]json.RawMessage
	if len(t.Unknown) > 0 {
		unknown = make(map[string]json.RawMessage, len(t.Unknown))
		for key, value := range t.Unknown {
			if raw, ok := value.(json.RawMessage); ok {
				unknown[key] = raw
				continue
			}
			raw, err := json.Marshal(value)
			if err != nil {
				continue
			}
			unknown[key] = raw
		}
	}
	return taskRecord{
		Unknown:       unknown,
		Kind:          recordKind,
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Estimate:      t.Estimate,
		Tags:          t.Tags,
		Skills:        t.Skills,
		Inputs:        t.Inputs,
		Deliverables:  t.Deliverables,
		Artifacts:     t.Artifacts,
		Exec:          t.Exec,
		Model:         t.Model,
		Verify:        t.Verify,
		Agent:         t.Agent,
		After:         t.After,
		Paused:        t.Paused,
		NotBefore:     t.NotBefore,
		ReadyAfter:    t.ReadyAfter,
		LoopIteration: t.LoopIteration,
		CycleConfig:   t.CycleConfig,
		Visibility:    string(t.Visibility),
		Log:           t.Log,
		ClaimedBy:     t.ClaimedBy,
	}
}

// task canonicalizes the record into a workgraph.Task. The blocked_by alias
// is merged into After and will be written back out as after on the next
// save.
func (r taskRecord) task() *workgraph.Task {
	after := r.After
	if len(r.BlockedBy) > 0 {
		seen := make(map[string]bool, len(after)+len(r.BlockedBy))
		merged := make([]string, 0, len(after)+len(r.BlockedBy))
		for _, id := range after {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
		for _, id := range r.BlockedBy {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
		after = merged
	}
	visibility := workgraph.Visibility(r.Visibility)
	if visibility == "" {
		visibility = workgraph.VisibilityInternal
	}
	var unknown map[string]any
	if len(r.Unknown) > 0 {
		unknown = make(map[string]any, len(r.Unknown))
		for key, raw := range r.Unknown {
			unknown[key] = raw
		}
	}
	return &workgraph.Task{
		Unknown:       unknown,
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Status:        workgraph.Status(r.Status),
		Estimate:      r.Estimate,
		Tags:          r.Tags,
		Skills:        r.Skills,
		Inputs:        r.Inputs,
		Deliverables:  r.Deliverables,
		Artifacts:     r.Artifacts,
		Exec:          r.Exec,
		Model:         r.Model,
		Verify:        r.Verify,
		Agent:         r.Agent,
		After:         after,
		Paused:        r.Paused,
		NotBefore:     r.NotBefore,
		ReadyAfter:    r.ReadyAfter,
		LoopIteration: r.LoopIteration,
		CycleConfig:   r.CycleConfig,
		Visibility:    visibility,
		Log:           r.Log,
		ClaimedBy:     r.ClaimedBy,
	}
}

func marshalLine(r taskRecord) ([]byte, error) {
	line, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
