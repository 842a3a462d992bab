package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	workgraphDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(workgraphDir, 0o755); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, WorkgraphDir: workgraphDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.MaxAgents() != defaultMaxAgents {
		t.Fatalf("expected default max agents %d, got %d", defaultMaxAgents, c.MaxAgents())
	}
}

func TestLoadProjectConfigParsesYAML(t *testing.T) {
	projectDir := t.TempDir()
	workgraphDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(workgraphDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
coordinator:
  max_agents: 8
  tick_interval: 10s
  auto_assign: false
executors:
  dir: custom-executors
  default: claude
service:
  socket: custom.sock
`)
	if err := os.WriteFile(filepath.Join(workgraphDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, WorkgraphDir: workgraphDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.MaxAgents() != 8 {
		t.Fatalf("expected max agents 8, got %d", c.MaxAgents())
	}
	if c.TickInterval() != 10*time.Second {
		t.Fatalf("expected tick interval 10s, got %s", c.TickInterval())
	}
	if c.AutoAssign() {
		t.Fatalf("expected auto_assign false")
	}
	if c.DefaultExecutor() != "claude" {
		t.Fatalf("expected default executor claude, got %s", c.DefaultExecutor())
	}
	if !strings.HasSuffix(c.SocketPath(), filepath.Join(Dir, "custom.sock")) {
		t.Fatalf("expected socket path under.workgraph, got %s", c.SocketPath())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	workgraphDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(workgraphDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
coordinator:
  tick_interval: not-a-duration
`)
	if err := os.WriteFile(filepath.Join(workgraphDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, WorkgraphDir: workgraphDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestInitDirCreatesProjectConfigTemplate(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir failed: %v", err)
	}
	configPath := filepath.Join(projectDir, Dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("expected config.yaml to exist: %v", err)
	}
	if !strings.Contains(string(data), "version: 1") {
		t.Fatalf("expected default config template, got %s", data)
	}
	for _, sub := range []string{"executors", "agents", "logs"} {
		if _, err := os.Stat(filepath.Join(projectDir, Dir, sub)); err != nil {
			t.Fatalf("expected %s dir to exist: %v", sub, err)
		}
	}
}

func TestMaxAgentsDefaultWhenZero(t *testing.T) {
	c := &Config{Project: ProjectConfig{}}
	if c.MaxAgents() != defaultMaxAgents {
		t.Fatalf("expected default max agents, got %d", c.MaxAgents())
	}
}

func TestTickIntervalDefaultsOnGarbage(t *testing.T) {
	c := &Config{Project: ProjectConfig{Coordinator: CoordinatorConfig{TickInterval: "nonsense"}}}
	want, _ := time.ParseDuration(defaultTickInterval)
	if c.TickInterval() != want {
		t.Fatalf("expected fallback tick interval %s, got %s", want, c.TickInterval())
	}
}
