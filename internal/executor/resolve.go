package executor

import "strings"

// AgentLookup resolves the opaque agent identities the graph model stores
// as task.Agent, a content-hash reference into a registry that lives
// outside this repository. The coordinator supplies
// a real implementation once that registry exists; tests and the minimal
// core supply one that always misses.
type AgentLookup interface {
	// Executor returns the agent's preferred executor name, if any.
	Executor(agentRef string) (name string, ok bool)
	// Model returns the agent's preferred model, if any.
	Model(agentRef string) (model string, ok bool)
	// Human reports whether the agent is flagged as a human collaborator,
	// which suppresses auto-evaluation meta-tasks.
	Human(agentRef string) bool
}

// NoAgents is the zero-value AgentLookup: every lookup misses.
type NoAgents struct{}

func (NoAgents) Executor(string) (string, bool) { return "", false }
func (NoAgents) Model(string) (string, bool)    { return "", false }
func (NoAgents) Human(string) bool              { return false }

// ResolveName picks the executor name for a dispatch: the task's own
// exec field wins (it always runs through the shell
// executor), then the assigned agent's preferred executor, then the
// coordinator's configured default.
func ResolveName(taskExec, taskAgent string, agents AgentLookup, defaultExecutor string) string {
	if strings.TrimSpace(taskExec) != "" {
		return "shell"
	}
	if taskAgent != "" && agents != nil {
		if name, ok := agents.Executor(taskAgent); ok && name != "" {
			return name
		}
	}
	return defaultExecutor
}

// ResolveModel picks the model for a dispatch: task.model > coordinator
// default model > agent.model.
func ResolveModel(taskModel, taskAgent, coordinatorModel string, agents AgentLookup) string {
	if strings.TrimSpace(taskModel) != "" {
		return taskModel
	}
	if strings.TrimSpace(coordinatorModel) != "" {
		return coordinatorModel
	}
	if taskAgent != "" && agents != nil {
		if model, ok := agents.Model(taskAgent); ok {
			return model
		}
	}
	return ""
}
