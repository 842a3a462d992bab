// Package executor resolves the command a dispatched task actually runs.
// An executor is either built in (shell, claude) or a named reference
// resolved against a directory of TOML executor definitions.
package executor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// Definition is one named executor, loaded from <executors-dir>/<name>.toml.
type Definition struct {
	// Command is a text/template string rendered against RenderData to
	// produce the shell command the wrapper script runs.
	Command string `toml:"command"`
	// Timeout bounds how long the wrapper waits before killing the
	// executor's process group; empty means no timeout. Parsed with the
	// project's N(s|m|h|d) duration grammar.
	Timeout string `toml:"timeout,omitempty"`
	// Env lists additional environment variables set for the executor
	// process, beyond the ones the wrapper clears.
	Env map[string]string `toml:"env,omitempty"`
}

// builtins are the two compiled-in executors; they need no TOML file on
// disk.
var builtins = map[string]Definition{
	"shell": {
		Command: "{{.Exec}}",
	},
	"claude": {
		Command: "claude -p {{.Prompt | printf \"%q\"}} --model {{.Model}}",
	},
}

// RenderData is the template context available to a Definition's Command.
type RenderData struct {
	TaskID string
	Exec   string
	Model  string
	Prompt string
}

// Registry loads and caches named executor definitions from a directory
// of TOML files, in addition to the two compiled-in executors.
type Registry struct {
	dir string

	mu    sync.Mutex
	cache map[string]Definition
}

// NewRegistry returns a Registry that resolves named executors against dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, cache: make(map[string]Definition)}
}

// Resolve returns the Definition for name, which must be "shell", "claude",
// or the base name (without .toml) of a file in the registry's directory.
func (r *Registry) Resolve(name string) (Definition, error) {
	if def, ok := builtins[name]; ok {
		return def, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.cache[name]; ok {
		return def, nil
	}
	path := filepath.Join(r.dir, name+".toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("executor: resolve %q: %w", name, err)
	}
	var def Definition
	if _, err := toml.Decode(string(data), &def); err != nil {
		return Definition{}, fmt.Errorf("executor: parse %s: %w", path, err)
	}
	if def.Command == "" {
		return Definition{}, fmt.Errorf("executor: %s: command is required", path)
	}
	r.cache[name] = def
	return def, nil
}

// Render expands the Definition's Command template against data.
func (d Definition) Render(data RenderData) (string, error) {
	tmpl, err := template.New("command").Parse(d.Command)
	if err != nil {
		return "", fmt.Errorf("executor: parse command template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executor: render command: %w", err)
	}
	return buf.String(), nil
}

// TimeoutDuration parses Timeout with the project's duration grammar. A
// zero duration and nil error mean "no timeout".
func (d Definition) TimeoutDuration() (time.Duration, error) {
	if d.Timeout == "" {
		return 0, nil
	}
	return workgraph.ParseDuration(d.Timeout)
}
