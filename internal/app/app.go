// Package app implements the task-level operations behind the CLI
// surface: creation, editing, status transitions, and queries. It is the
// thin layer cmd/workgraph's cobra commands call into, kept separate from
// cmd/ so the operations are independently testable without a process
// boundary.
package app

import (
	"fmt"

	"github.com/workgraph/workgraph/internal/config"
	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/ipc"
	"github.com/workgraph/workgraph/internal/store"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// App wires the config, store, and (best-effort) daemon notification for
// one project directory.
type App struct {
	Config *config.Config
	Store  *store.Store
}

// Open loads (or lazily creates) the project config and store for
// projectDir. Callers should run config.InitDir first if the project has
// never been initialized; Open itself does not create directories.
func Open(projectDir string) (*App, error) {
	cfg, err := config.New(projectDir)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	return &App{
		Config: cfg,
		Store:  store.New(cfg.GraphPath(), cfg.OperationsLogPath()),
	}, nil
}

// notifyDaemon wakes the coordinator for an out-of-band tick after a
// CLI-driven mutation. It is best-effort: a CLI command
// must succeed whether or not a daemon happens to be running.
func (a *App) notifyDaemon() {
	client := ipc.NewClient(a.Config.SocketPath())
	_, _ = client.Send(ipc.KindGraphChanged, nil)
}

func nilClaim() **string {
	var p *string
	return &p
}

func claimValue(v string) **string {
	p := &v
	return &p
}

// Load returns the current on-disk graph, for read-only commands.
func (a *App) Load() (*workgraph.Graph, error) {
	return a.Store.Load()
}

// Check runs both the graph-local validations and the SCC-header
// validations (kept as two packages to avoid a workgraph <-> cycle import
// cycle).
func (a *App) Check() ([]workgraph.Finding, error) {
	g, err := a.Load()
	if err != nil {
		return nil, err
	}
	findings := g.Check()
	findings = append(findings, cycle.CheckHeaders(g)...)
	return findings, nil
}
