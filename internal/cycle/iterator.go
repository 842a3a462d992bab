package cycle

import (
	"fmt"
	"time"

	"github.com/workgraph/workgraph/internal/workgraph"
)

// ReopenResult reports what Iterate did.
type ReopenResult struct {
	Reopened      bool
	Header        string
	Members       []string
	NewIteration  int
	GuardFired    bool
	GuardNotFired string // reason, set only when GuardFired is false and a member check happened
}

// Iterate is invoked after any status transition to a terminal state on a
// task that is a member of a structural cycle. It is a no-op unless
// every member of taskID's cycle is terminal, the header isn't converged,
// the iteration cap isn't reached, and the guard fires; otherwise it
// atomically re-opens every member.
func Iterate(g *workgraph.Graph, analysis *Analysis, taskID string) (ReopenResult, error) {
	scc, ok := analysis.SCCFor(taskID)
	if !ok || scc.Trivial() {
		return ReopenResult{}, nil
	}
	if len(scc.Headers) != 1 {
		return ReopenResult{}, fmt.Errorf("cycle: %w", &CycleUnconfiguredError{Members: scc.Members, Headers: scc.Headers})
	}
	header := scc.Headers[0]

	for _, id := range scc.Members {
		t, ok := g.Get(id)
		if !ok {
			continue
		}
		if !t.Status.Terminal() {
			return ReopenResult{}, nil // members still executing
		}
	}

	headerTask, ok := g.Get(header)
	if !ok || headerTask.CycleConfig == nil {
		return ReopenResult{}, fmt.Errorf("cycle: header %q missing cycle_config", header)
	}
	if headerTask.Converged() {
		return ReopenResult{}, nil
	}
	if headerTask.LoopIteration >= headerTask.CycleConfig.MaxIterations {
		return ReopenResult{}, nil
	}

	fired, reason := evaluateGuard(g, headerTask)
	if !fired {
		return ReopenResult{GuardFired: false, GuardNotFired: reason}, nil
	}

	newIteration := headerTask.LoopIteration + 1
	var delay time.Duration
	var hasDelay bool
	if headerTask.CycleConfig.Delay != "" {
		d, err := workgraph.ParseDuration(headerTask.CycleConfig.Delay)
		if err != nil {
			return ReopenResult{}, fmt.Errorf("cycle: header %q delay: %w", header, err)
		}
		delay, hasDelay = d, true
	}

	for _, id := range scc.Members {
		open := workgraph.StatusOpen
		patch := workgraph.Patch{
			Status:        &open,
			ClaimedBy:     nilClaim(),
			LoopIteration: &newIteration,
			LogActor:      "cycle-iterator",
			LogMessage:    fmt.Sprintf("Re-activated by cycle iteration (iteration %d/%d)", newIteration, headerTask.CycleConfig.MaxIterations),
		}
		if id != header {
			patch.ReadyAfter = nilTime()
			patch.NotBefore = nilTime()
		} else if hasDelay {
			readyAfter := time.Now().Add(delay)
			patch.ReadyAfter = timePtr(&readyAfter)
		} else {
			patch.ReadyAfter = nilTime()
		}
		if err := g.Edit(id, patch); err != nil {
			return ReopenResult{}, fmt.Errorf("cycle: reopen %q: %w", id, err)
		}
	}

	return ReopenResult{
		Reopened:     true,
		Header:       header,
		Members:      scc.Members,
		NewIteration: newIteration,
		GuardFired:   true,
	}, nil
}

func evaluateGuard(g *workgraph.Graph, header *workgraph.Task) (fired bool, reason string) {
	guard := header.CycleConfig.Guard
	if guard == nil {
		return true, ""
	}
	switch guard.Variant() {
	case workgraph.GuardAlways:
		return true, ""
	case workgraph.GuardTaskStatus:
		ref, ok := g.Get(guard.TaskID)
		if !ok {
			return false, fmt.Sprintf("guard references missing task %q", guard.TaskID)
		}
		return ref.Status == guard.Status, ""
	case workgraph.GuardIterationLessThan:
		return header.LoopIteration < guard.N, ""
	default:
		return true, ""
	}
}

// MarkConverged applies the --converged completion flag: it tags taskID's
// cycle header (not taskID itself) with "converged", stopping further
// iteration regardless of remaining budget or guard. A no-op if taskID is
// not a cycle member.
func MarkConverged(g *workgraph.Graph, analysis *Analysis, taskID string) error {
	scc, ok := analysis.SCCFor(taskID)
	if !ok || scc.Trivial() || len(scc.Headers) != 1 {
		return nil
	}
	return g.Edit(scc.Headers[0], workgraph.Patch{AddTags: []string{"converged"}})
}

// ClearConverged is invoked by retry on any cycle member: it removes the
// "converged" tag from the cycle's header.
func ClearConverged(g *workgraph.Graph, analysis *Analysis, taskID string) error {
	scc, ok := analysis.SCCFor(taskID)
	if !ok || scc.Trivial() || len(scc.Headers) != 1 {
		return nil
	}
	return g.Edit(scc.Headers[0], workgraph.Patch{RemoveTags: []string{"converged"}})
}

// CycleUnconfiguredError reports an SCC with zero or multiple cycle_config
// headers; the iterator and the scheduler both refuse to act on it.
type CycleUnconfiguredError struct {
	Members []string
	Headers []string
}

func (e *CycleUnconfiguredError) Error() string {
	return fmt.Sprintf("cycle %v has %d configured headers (want exactly 1): %v", e.Members, len(e.Headers), e.Headers)
}

func nilClaim() **string {
	var p *string
	return &p
}

func nilTime() **time.Time {
	var p *time.Time
	return &p
}

func timePtr(t *time.Time) **time.Time {
	return &t
}
