package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderWrapperContainsResponsibilities(t *testing.T) {
	script, err := RenderWrapper(WrapperData{
		TaskID:     "write-spec",
		Command:    "claude -p hello --model opus",
		WorkDir:    "/tmp/work",
		OutputLog:  "/tmp/work/output.log",
		CLIPath:    "/usr/local/bin/workgraph",
		ProjectDir: "/repo",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"unset WORKGRAPH_PROJECT_DIR",
		"claude -p hello --model opus",
		"tee -a",
		"show write-spec",
		"done write-spec",
		"fail write-spec",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("wrapper script missing %q:\n%s", want, script)
		}
	}
	if strings.Contains(script, "timeout ") {
		t.Fatalf("wrapper script should not use `timeout` when TimeoutSeconds is unset:\n%s", script)
	}
}

func TestRenderWrapperAppliesTimeout(t *testing.T) {
	script, err := RenderWrapper(WrapperData{
		TaskID:         "write-spec",
		Command:        "claude -p hello",
		WorkDir:        "/tmp/work",
		OutputLog:      "/tmp/work/output.log",
		CLIPath:        "/usr/local/bin/workgraph",
		ProjectDir:     "/repo",
		TimeoutSeconds: 120,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(script, "timeout 120s claude -p hello") {
		t.Fatalf("wrapper script missing timeout wrapping:\n%s", script)
	}
}

func TestWriteWrapperCreatesExecutableFile(t *testing.T) {
	dir := t.TempDir()
	workDir := filepath.Join(dir, "task-1")
	path, err := WriteWrapper(WrapperData{
		TaskID:     "task-1",
		Command:    "echo hi",
		WorkDir:    workDir,
		OutputLog:  filepath.Join(workDir, "output.log"),
		CLIPath:    "workgraph",
		ProjectDir: dir,
	})
	if err != nil {
		t.Fatalf("write wrapper: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Mode()&0o100 == 0 {
		t.Fatalf("wrapper should be executable, mode = %v", info.Mode())
	}
}
