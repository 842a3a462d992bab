package workgraph

import "fmt"

// NotFoundError reports a reference to a task that does not exist in the
// graph, raised only where the invariant model requires the reference to
// resolve (e.g. editing a specific task by ID). Dangling after-references
// are explicitly fail-open and do not raise this error.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workgraph: task %q not found", e.ID)
}

// InvariantError reports a mutation that would break one of the graph's
// invariants.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("workgraph: invariant violation: %s", e.Reason)
}

func newInvariantError(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// DuplicateIDError reports an attempt to add a task whose ID already exists.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("workgraph: duplicate task id %q", e.ID)
}
