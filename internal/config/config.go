// internal/config/config.go
//
// This package handles configuration and the .workgraph directory
// structure. Every project that uses Workgraph gets a .workgraph/
// folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project.
	Dir = ".workgraph"

	defaultTickInterval = "5s"
	defaultMaxAgents    = 4
)

const defaultProjectConfigYAML = `# workgraph project configuration
version: 1

coordinator:
  max_agents: 4
  tick_interval: 5s
  auto_assign: true
  auto_evaluate: true
  auto_triage: false

executors:
  dir: executors
  default: shell

# Unix-socket IPC settings.
service:
  socket: service.sock
`

// CoordinatorConfig governs the tick loop's dispatch behavior.
type CoordinatorConfig struct {
	MaxAgents    int    `yaml:"max_agents"`
	TickInterval string `yaml:"tick_interval"`
	AutoAssign   *bool  `yaml:"auto_assign,omitempty"`
	AutoEvaluate *bool  `yaml:"auto_evaluate,omitempty"`
	AutoTriage   *bool  `yaml:"auto_triage,omitempty"`
}

// ExecutorsConfig locates the directory of named executor definitions.
type ExecutorsConfig struct {
	Dir     string `yaml:"dir,omitempty"`
	Default string `yaml:"default,omitempty"`
}

// ServiceConfig controls the IPC unix-socket listener.
type ServiceConfig struct {
	Socket string `yaml:"socket,omitempty"`
}

// ProjectConfig models .workgraph/config.yaml.
type ProjectConfig struct {
	Version     int               `yaml:"version"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Executors   ExecutorsConfig   `yaml:"executors"`
	Service     ServiceConfig     `yaml:"service"`
}

// Config holds the runtime configuration for a Workgraph project.
type Config struct {
	// ProjectDir is the directory where the user ran `workgraph` from.
	ProjectDir string

	// WorkgraphDir is ProjectDir/.workgraph
	WorkgraphDir string

	Project ProjectConfig
}

// InitDir creates the .workgraph directory structure in the given project
// directory. Safe to call repeatedly.
//
// Structure created:
// .workgraph/
// ├── graph.jsonl        <- the task graph (created lazily by the store)
// ├── operations.jsonl   <- audit log (created lazily by the store)
// ├── executors/         <- named TOML executor definitions
// ├── agents/            <- agent registry snapshots + per-task work dirs
// └── logs/               <- daemon log
func InitDir(projectDir string) error {
	workgraphDir := filepath.Join(projectDir, Dir)
	dirs := []string{
		workgraphDir,
		filepath.Join(workgraphDir, "executors"),
		filepath.Join(workgraphDir, "agents"),
		filepath.Join(workgraphDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(workgraphDir, "config.yaml"))
}

// New creates a new Config instance populated with project settings.
func New(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:   projectDir,
		WorkgraphDir: filepath.Join(projectDir, Dir),
		Project:      defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GraphPath returns the path to the canonical JSONL graph file.
func (c *Config) GraphPath() string {
	return filepath.Join(c.WorkgraphDir, "graph.jsonl")
}

// OperationsLogPath returns the path to the append-only operations log.
func (c *Config) OperationsLogPath() string {
	return filepath.Join(c.WorkgraphDir, "operations.jsonl")
}

// ExecutorsDir returns the directory holding named TOML executor definitions.
func (c *Config) ExecutorsDir() string {
	return resolvePath(c.ProjectDir, joinNonEmpty(c.WorkgraphDir, c.Project.Executors.Dir))
}

// AgentsDir returns the directory where agent registry snapshots and
// per-task working directories are materialized.
func (c *Config) AgentsDir() string {
	return filepath.Join(c.WorkgraphDir, "agents")
}

// LogsDir returns the directory holding the daemon's own log file.
func (c *Config) LogsDir() string {
	return filepath.Join(c.WorkgraphDir, "logs")
}

// SocketPath returns the path to the IPC unix domain socket.
func (c *Config) SocketPath() string {
	socket := strings.TrimSpace(c.Project.Service.Socket)
	if socket == "" {
		socket = "service.sock"
	}
	if filepath.IsAbs(socket) {
		return socket
	}
	return filepath.Join(c.WorkgraphDir, socket)
}

// MaxAgents returns the configured parallelism cap.
func (c *Config) MaxAgents() int {
	if c.Project.Coordinator.MaxAgents <= 0 {
		return defaultMaxAgents
	}
	return c.Project.Coordinator.MaxAgents
}

// TickInterval returns the coordinator's safety-net poll interval.
func (c *Config) TickInterval() time.Duration {
	raw := strings.TrimSpace(c.Project.Coordinator.TickInterval)
	if raw == "" {
		raw = defaultTickInterval
	}
	dur, err := time.ParseDuration(raw)
	if err != nil || dur <= 0 {
		dur, _ = time.ParseDuration(defaultTickInterval)
	}
	return dur
}

// AutoAssign reports whether the coordinator should generate assignment
// meta-tasks for ready, unassigned work.
func (c *Config) AutoAssign() bool {
	return boolOrDefault(c.Project.Coordinator.AutoAssign, true)
}

// AutoEvaluate reports whether the coordinator should generate evaluation
// meta-tasks for newly terminal tasks.
func (c *Config) AutoEvaluate() bool {
	return boolOrDefault(c.Project.Coordinator.AutoEvaluate, true)
}

// AutoTriage reports whether dead-agent reaping should enqueue a triage task.
func (c *Config) AutoTriage() bool {
	return boolOrDefault(c.Project.Coordinator.AutoTriage, false)
}

// DefaultExecutor returns the executor name used when a task specifies none.
func (c *Config) DefaultExecutor() string {
	name := strings.TrimSpace(c.Project.Executors.Default)
	if name == "" {
		return "shell"
	}
	return name
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = parsed
	return nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.WorkgraphDir, "config.yaml")
}

func defaultProjectConfig() ProjectConfig {
	cfg := ProjectConfig{
		Version: 1,
		Coordinator: CoordinatorConfig{
			MaxAgents:    defaultMaxAgents,
			TickInterval: defaultTickInterval,
		},
		Executors: ExecutorsConfig{Dir: "executors", Default: "shell"},
		Service:   ServiceConfig{Socket: "service.sock"},
	}
	return cfg
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Coordinator.MaxAgents <= 0 {
		pc.Coordinator.MaxAgents = defaultMaxAgents
	}
	if strings.TrimSpace(pc.Coordinator.TickInterval) == "" {
		pc.Coordinator.TickInterval = defaultTickInterval
	}
	if strings.TrimSpace(pc.Executors.Dir) == "" {
		pc.Executors.Dir = "executors"
	}
	if strings.TrimSpace(pc.Executors.Default) == "" {
		pc.Executors.Default = "shell"
	}
	if strings.TrimSpace(pc.Service.Socket) == "" {
		pc.Service.Socket = "service.sock"
	}
}

func (pc ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Coordinator.MaxAgents < 0 {
		return fmt.Errorf("coordinator.max_agents must be >= 0")
	}
	if _, err := time.ParseDuration(pc.Coordinator.TickInterval); err != nil {
		return fmt.Errorf("coordinator.tick_interval: %w", err)
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func joinNonEmpty(base, rel string) string {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return base
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(base, rel)
}
