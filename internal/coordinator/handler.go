package coordinator

import (
	"fmt"
	"syscall"
	"time"

	"github.com/workgraph/workgraph/internal/agent"
	"github.com/workgraph/workgraph/internal/ipc"
	"github.com/workgraph/workgraph/internal/workgraph"
)

func killFn(pid int, sig syscall.Signal) error {
	return agent.Kill(pid, sig)
}

func parseDrainTimeout(raw string) (time.Duration, error) {
	return workgraph.ParseDuration(raw)
}

// Handle implements ipc.Handler, dispatching each accepted command kind to
// the matching Coordinator method.
func (co *Coordinator) Handle(cmd ipc.Command) (any, error) {
	switch cmd.Kind {
	case ipc.KindGraphChanged:
		return co.Tick()

	case ipc.KindSpawn:
		var p ipc.SpawnPayload
		if err := ipc.DecodePayload(cmd, &p); err != nil {
			return nil, err
		}
		dispatched, err := co.SpawnNow(p.TaskID)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"dispatched": dispatched}, nil

	case ipc.KindAgents:
		return co.registry.Snapshot(), nil

	case ipc.KindKill:
		var p ipc.KillPayload
		if err := ipc.DecodePayload(cmd, &p); err != nil {
			return nil, err
		}
		return nil, co.kill(p.Tag, p.Force)

	case ipc.KindHeartbeat:
		var p ipc.HeartbeatPayload
		if err := ipc.DecodePayload(cmd, &p); err != nil {
			return nil, err
		}
		co.registry.Heartbeat(p.Tag, co.clock())
		return map[string]bool{"ok": true}, nil

	case ipc.KindStatus:
		return co.Status(), nil

	case ipc.KindShutdown:
		var p ipc.ShutdownPayload
		if err := ipc.DecodePayload(cmd, &p); err != nil {
			return nil, err
		}
		err := co.Drain(p.DrainTimeout)
		co.Shutdown()
		return nil, err

	case ipc.KindPause:
		co.Pause()
		return map[string]bool{"paused": true}, nil

	case ipc.KindResume:
		co.Resume()
		return map[string]bool{"paused": false}, nil

	case ipc.KindReconfigure:
		var p ipc.ReconfigurePayload
		if err := ipc.DecodePayload(cmd, &p); err != nil {
			return nil, err
		}
		co.Reconfigure(p.MaxAgents)
		return map[string]bool{"ok": true}, nil

	default:
		return nil, fmt.Errorf("coordinator: unknown command kind %q", cmd.Kind)
	}
}

// StatusSnapshot answers the IPC `status` command.
type StatusSnapshot struct {
	Paused       bool `json:"paused"`
	LiveAgents   int  `json:"live_agents"`
	MaxAgents    int  `json:"max_agents"`
	GraphTaskCnt int  `json:"graph_task_count"`
}

// Status reports daemon health.
func (co *Coordinator) Status() StatusSnapshot {
	snap := StatusSnapshot{
		Paused:     co.Paused(),
		LiveAgents: co.registry.Len(),
		MaxAgents:  co.effectiveMaxAgents(),
	}
	if g, err := co.store.Load(); err == nil {
		snap.GraphTaskCnt = g.Len()
	}
	return snap
}

// kill signals a registered process. SIGTERM by default, SIGKILL if force
// is set.
func (co *Coordinator) kill(tag string, force bool) error {
	rec, ok := co.registry.Get(tag)
	if !ok {
		return fmt.Errorf("coordinator: no registered process with tag %q", tag)
	}
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	return killFn(rec.PID, sig)
}

// Drain waits up to timeout (parsed with the project's duration grammar)
// for in-flight workers to finish before the caller stops the daemon; an
// empty timeout means stop immediately.
func (co *Coordinator) Drain(timeout string) error {
	if timeout == "" {
		return nil
	}
	dur, err := parseDrainTimeout(timeout)
	if err != nil {
		return err
	}
	deadline := co.clock().Add(dur)
	for co.registry.Len() > 0 && co.clock().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}
