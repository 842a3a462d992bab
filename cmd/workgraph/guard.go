package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/workgraph/workgraph/internal/workgraph"
)

// parseGuard parses the --cycle-guard flag value into a workgraph.Guard.
// Grammar: "always", "task-status:<id>:<status>", "iteration-lt:<n>".
func parseGuard(spec string) (*workgraph.Guard, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "always" {
		return nil, nil // nil means GuardAlways by zero-value convention
	}
	parts := strings.Split(spec, ":")
	switch parts[0] {
	case "task-status":
		if len(parts) != 3 {
			return nil, fmt.Errorf("cycle-guard: task-status requires <id>:<status>, got %q", spec)
		}
		status := workgraph.Status(parts[2])
		return &workgraph.Guard{
			Kind:   workgraph.GuardTaskStatus,
			TaskID: parts[1],
			Status: status,
		}, nil
	case "iteration-lt":
		if len(parts) != 2 {
			return nil, fmt.Errorf("cycle-guard: iteration-lt requires <n>, got %q", spec)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("cycle-guard: iteration-lt: %w", err)
		}
		return &workgraph.Guard{Kind: workgraph.GuardIterationLessThan, N: n}, nil
	default:
		return nil, fmt.Errorf("cycle-guard: unknown guard kind %q", parts[0])
	}
}
