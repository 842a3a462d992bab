// Package ipc implements the Unix-socket, newline-delimited JSON protocol
// between CLI clients and the coordinator daemon.
package ipc

import "encoding/json"

// Command kinds the daemon accepts.
const (
	KindGraphChanged = "graph_changed"
	KindSpawn        = "spawn"
	KindAgents       = "agents"
	KindKill         = "kill"
	KindHeartbeat    = "heartbeat"
	KindStatus       = "status"
	KindShutdown     = "shutdown"
	KindPause        = "pause"
	KindResume       = "resume"
	KindReconfigure  = "reconfigure"
)

// Command is one line sent over the socket by a client.
type Command struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is one line sent back: either {ok:true, result} or
// {ok:false, error}.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SpawnPayload is the `spawn` command's payload.
type SpawnPayload struct {
	TaskID string `json:"task_id"`
}

// KillPayload is the `kill` command's payload.
type KillPayload struct {
	Tag   string `json:"tag"`
	Force bool   `json:"force,omitempty"`
}

// HeartbeatPayload is the `heartbeat` command's payload.
type HeartbeatPayload struct {
	Tag string `json:"tag"`
}

// ReconfigurePayload is the `reconfigure` command's payload; nil fields
// leave the current value untouched.
type ReconfigurePayload struct {
	MaxAgents *int `json:"max_agents,omitempty"`
}

// ShutdownPayload is the `shutdown` command's payload. DrainTimeout gives
// in-flight workers a bounded grace period before the daemon exits.
type ShutdownPayload struct {
	DrainTimeout string `json:"drain_timeout,omitempty"`
}

// DecodePayload unmarshals cmd.Payload into dst. A command sent with no
// payload (e.g. graph_changed) leaves dst untouched.
func DecodePayload(cmd Command, dst any) error {
	if len(cmd.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(cmd.Payload, dst)
}

// NewCommand builds a Command, marshaling payload (which may be nil).
func NewCommand(kind string, payload any) (Command, error) {
	if payload == nil {
		return Command{Kind: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Payload: raw}, nil
}
