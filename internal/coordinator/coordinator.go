// Package coordinator implements the tick-driven dispatch loop: reap dead
// workers, count available parallelism slots, generate meta-tasks, select
// ready work, and fork detached executor processes for it.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workgraph/workgraph/internal/agent"
	"github.com/workgraph/workgraph/internal/config"
	"github.com/workgraph/workgraph/internal/cycle"
	"github.com/workgraph/workgraph/internal/executor"
	"github.com/workgraph/workgraph/internal/logging"
	"github.com/workgraph/workgraph/internal/store"
	"github.com/workgraph/workgraph/internal/workgraph"
)

// Clock abstracts time.Now, matching the ready package's convention so
// tests can drive not_before/ready_after/delay logic deterministically.
type Clock func() time.Time

// Coordinator owns one project's tick loop. It is built to run on a single
// goroutine; the mutex below only protects the small set of fields the
// IPC server's own goroutines read and write (pause state, live
// reconfiguration).
type Coordinator struct {
	store      *store.Store
	cfg        *config.Config
	cycleCache *cycle.Cache
	registry   *agent.Registry
	executors  *executor.Registry
	agents     executor.AgentLookup
	logger     *logging.Logger
	clock      Clock
	cliPath    string
	model      string
	spawn      func(scriptPath string) (int, error)

	// tickMu serializes Tick and SpawnNow so only one logical tick ever runs
	// at a time even though the IPC server dispatches each connection on its
	// own goroutine. The concurrency in this system comes from detached
	// worker processes, never from goroutines racing inside the daemon.
	tickMu sync.Mutex

	mu                sync.Mutex
	paused            bool
	maxAgentsOverride *int
	prevStatus        map[string]workgraph.Status
	recovered         bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Option configures a Coordinator at construction time, following the
// functional-option convention used throughout this codebase (WithClock,
// WithLogger, ...).
type Option func(*Coordinator)

// WithClock overrides time.Now, for deterministic tests.
func WithClock(c Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithLogger attaches a daemon logger.
func WithLogger(l *logging.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithCLIPath sets the path to the workgraph CLI binary the wrapper script
// self-reports through. Defaults to "workgraph" (resolved via PATH).
func WithCLIPath(path string) Option {
	return func(co *Coordinator) { co.cliPath = path }
}

// WithAgentLookup supplies the external agent-registry collaborator used to
// resolve an assigned agent's preferred executor/model and human flag. The
// zero value (executor.NoAgents{}) is used if this option is omitted.
func WithAgentLookup(lookup executor.AgentLookup) Option {
	return func(co *Coordinator) { co.agents = lookup }
}

// WithModel sets the coordinator's default model, consulted between task.model
// and the assigned agent's model.
func WithModel(model string) Option {
	return func(co *Coordinator) { co.model = model }
}

// WithSpawnFunc overrides how dispatch forks the wrapper script. Tests use
// this to avoid forking real processes while still exercising claim and
// registry bookkeeping; production code leaves this at its agent.Spawn
// default.
func WithSpawnFunc(fn func(scriptPath string) (int, error)) Option {
	return func(co *Coordinator) { co.spawn = fn }
}

// New builds a Coordinator for the project described by cfg.
func New(cfg *config.Config, st *store.Store, opts ...Option) *Coordinator {
	co := &Coordinator{
		store:      st,
		cfg:        cfg,
		cycleCache: &cycle.Cache{},
		registry:   agent.NewRegistry(),
		executors:  executor.NewRegistry(cfg.ExecutorsDir()),
		agents:     executor.NoAgents{},
		clock:      time.Now,
		cliPath:    "workgraph",
		spawn:      agent.Spawn,
		prevStatus: make(map[string]workgraph.Status),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Registry exposes the agent registry for the IPC `agents` query.
func (co *Coordinator) Registry() *agent.Registry { return co.registry }

// Paused reports whether new dispatches are currently suspended.
func (co *Coordinator) Paused() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.paused
}

// Pause suspends new dispatches. In-flight workers are unaffected.
func (co *Coordinator) Pause() {
	co.mu.Lock()
	co.paused = true
	co.mu.Unlock()
}

// Resume re-enables dispatch.
func (co *Coordinator) Resume() {
	co.mu.Lock()
	co.paused = false
	co.mu.Unlock()
}

// Reconfigure applies a live configuration update. Only MaxAgents is
// mutable today; a reduced cap never preempts agents already running.
func (co *Coordinator) Reconfigure(maxAgents *int) {
	co.mu.Lock()
	co.maxAgentsOverride = maxAgents
	co.mu.Unlock()
}

func (co *Coordinator) effectiveMaxAgents() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.maxAgentsOverride != nil {
		return *co.maxAgentsOverride
	}
	return co.cfg.MaxAgents()
}

func (co *Coordinator) logf(format string, args ...any) {
	if co.logger != nil {
		co.logger.Printf(format, args...)
	}
}

// TickReport summarizes one tick for logging and the `status` IPC command.
type TickReport struct {
	Reaped     []string `json:"reaped,omitempty"`
	Assigned   []string `json:"assigned,omitempty"`
	Evaluated  []string `json:"evaluated,omitempty"`
	Dispatched []string `json:"dispatched,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"` // paused, or zero available slots
}

// Tick runs one full pass of the coordinator loop: reap, slot-count,
// auto-meta-tasks, ready-select, dispatch, in that order. The tick
// runs under the store's own file lock for each individual mutation it
// makes; nothing else is permitted to mutate the in-memory graph
// concurrently with a tick.
func (co *Coordinator) Tick() (TickReport, error) {
	co.tickMu.Lock()
	defer co.tickMu.Unlock()

	var report TickReport

	if co.Paused() {
		report.Skipped = true
		return report, nil
	}

	// First tick after a daemon start: pick up workers a previous daemon
	// left running before deciding anything about liveness or slots.
	if !co.recovered {
		if err := co.recoverRegistry(); err != nil {
			co.logf("recover registry: %v", err)
		}
		co.recovered = true
	}

	reaped, err := co.reap()
	if err != nil {
		return report, fmt.Errorf("coordinator: reap: %w", err)
	}
	report.Reaped = reaped

	available := co.effectiveMaxAgents() - co.registry.Len()
	if available <= 0 {
		co.logf("tick: no available slots (max=%d live=%d)", co.effectiveMaxAgents(), co.registry.Len())
		return report, nil
	}

	g, err := co.store.Load()
	if err != nil {
		return report, fmt.Errorf("coordinator: load graph: %w", err)
	}

	orphaned, err := co.reapOrphans(g)
	if err != nil {
		return report, fmt.Errorf("coordinator: reap orphans: %w", err)
	}
	report.Reaped = append(report.Reaped, orphaned...)
	if len(orphaned) > 0 {
		if g, err = co.store.Load(); err != nil {
			return report, fmt.Errorf("coordinator: reload graph: %w", err)
		}
	}

	analysis := co.cycleCache.Get(g)

	if co.cfg.AutoAssign() {
		assigned, err := co.autoAssign(g, analysis)
		if err != nil {
			return report, fmt.Errorf("coordinator: auto-assign: %w", err)
		}
		report.Assigned = assigned
	}
	if co.cfg.AutoEvaluate() {
		evaluated, err := co.autoEvaluate(g)
		if err != nil {
			return report, fmt.Errorf("coordinator: auto-evaluate: %w", err)
		}
		report.Evaluated = evaluated
	}

	// Re-load: auto-assign/evaluate wrote through the store via separate
	// mutations, so the in-memory graph above is stale for ready selection.
	// The cycle cache fingerprints the edge set itself, so it only re-runs
	// Tarjan if those meta-tasks actually added edges.
	g, err = co.store.Load()
	if err != nil {
		return report, fmt.Errorf("coordinator: reload graph: %w", err)
	}
	analysis = co.cycleCache.Get(g)

	selected := co.selectReady(g, analysis, available)
	dispatched, err := co.dispatchAll(g, selected)
	if err != nil {
		return report, fmt.Errorf("coordinator: dispatch: %w", err)
	}
	report.Dispatched = dispatched

	return report, nil
}

// Shutdown signals that the daemon process hosting this Coordinator should
// stop serving and exit. Idempotent. The daemon's main
// loop selects on Done to learn when to close the IPC listener and return.
func (co *Coordinator) Shutdown() {
	co.shutdownOnce.Do(func() { close(co.shutdownCh) })
}

// Done returns a channel that closes once Shutdown has been called.
func (co *Coordinator) Done() <-chan struct{} {
	return co.shutdownCh
}

func newProcessTag() string {
	return "proc-" + uuid.NewString()
}
