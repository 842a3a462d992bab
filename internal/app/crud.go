package app

import (
	"fmt"
	"time"

	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/ready"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// NewTaskParams carries the fields `workgraph add` accepts.
// ID, if empty, is derived from Title via workgraph.Slugify with a numeric
// suffix appended on collision.
type NewTaskParams struct {
	ID          string
	Title       string
	Description string
	After       []string
	Tags        []string
	Exec        string
	Model       string
	Agent       string
	Visibility  workgraph.Visibility
	CycleConfig *workgraph.CycleConfig
}

// Add creates a new task, disambiguating a derived ID against existing
// tasks inside the same mutation so concurrent `add` calls can never
// collide.
func (a *App) Add(p NewTaskParams) (string, error) {
	if p.Title == "" {
		return "", fmt.Errorf("app: add: title is required")
	}
	var assignedID string
	err := a.Store.Mutate("task_create", "cli", func(g *workgraph.Graph) error {
		id := p.ID
		if id == "" {
			id = uniqueID(g, workgraph.Slugify(p.Title))
		} else if _, exists := g.Get(id); exists {
			return &workgraph.DuplicateIDError{ID: id}
		}
		t := workgraph.NewTask(id, p.Title)
		t.Description = p.Description
		t.After = append([]string(nil), p.After...)
		t.Tags = append([]string(nil), p.Tags...)
		t.Exec = p.Exec
		t.Model = p.Model
		t.Agent = p.Agent
		if p.Visibility != "" {
			t.Visibility = p.Visibility
		}
		t.CycleConfig = p.CycleConfig
		if err := g.Add(t); err != nil {
			return err
		}
		assignedID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	a.notifyDaemon()
	return assignedID, nil
}

func uniqueID(g *workgraph.Graph, base string) string {
	if base == "" {
		base = "task"
	}
	if _, exists := g.Get(base); !exists {
		return base
	}
	for n := 2;; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, exists := g.Get(candidate); !exists {
			return candidate
		}
	}
}

// EditParams carries the mutable fields `workgraph edit` accepts. A nil
// pointer/slice leaves the field unchanged, matching workgraph.Patch's own
// convention.
type EditParams struct {
	Title       *string
	Description *string
	AddAfter    []string
	RemoveAfter []string
	AddTags     []string
	RemoveTags  []string
	Exec        *string
	Model       *string
	Agent       *string
	Paused      *bool
	NotBefore   **time.Time
	Status      *workgraph.Status
	CycleConfig **workgraph.CycleConfig
}

// Edit applies a partial update to an existing task.
func (a *App) Edit(id string, p EditParams) error {
	err := a.Store.Mutate("task_edit", "cli", func(g *workgraph.Graph) error {
		return g.Edit(id, workgraph.Patch{
			Title:       p.Title,
			Description: p.Description,
			AddAfter:    p.AddAfter,
			RemoveAfter: p.RemoveAfter,
			AddTags:     p.AddTags,
			RemoveTags:  p.RemoveTags,
			Exec:        p.Exec,
			Model:       p.Model,
			Agent:       p.Agent,
			Paused:      p.Paused,
			NotBefore:   p.NotBefore,
			Status:      p.Status,
			CycleConfig: p.CycleConfig,
			LogActor:    "cli",
			LogMessage:  "Edited",
		})
	})
	if err != nil {
		return err
	}
	a.notifyDaemon()
	return nil
}

// List returns every task, in insertion order, for `workgraph list`.
func (a *App) List() ([]*workgraph.Task, error) {
	g, err := a.Load()
	if err != nil {
		return nil, err
	}
	return g.Tasks(), nil
}

// Ready returns the IDs the coordinator would currently consider
// dispatchable, for `workgraph ready`. It does not apply the
// coordinator's priority/age ordering, only readiness membership.
func (a *App) Ready() ([]string, error) {
	g, err := a.Load()
	if err != nil {
		return nil, err
	}
	analysis := cycle.Analyze(g)
	return ready.ReadyTasks(g, analysis, nil), nil
}

// Show returns a single task by ID, for `workgraph show` (including its
// `--field` projection, handled by the CLI layer itself since the field
// name is a display concern, not a domain one).
func (a *App) Show(id string) (*workgraph.Task, error) {
	g, err := a.Load()
	if err != nil {
		return nil, err
	}
	t, ok := g.Get(id)
	if !ok {
		return nil, &workgraph.NotFoundError{ID: id}
	}
	return t, nil
}
