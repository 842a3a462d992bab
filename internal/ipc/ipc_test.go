package ipc

import (
	"fmt"
	"path/filepath"
	"testing"
)

type echoHandler struct {
	calls []string
}

func (h *echoHandler) Handle(cmd Command) (any, error) {
	h.calls = append(h.calls, cmd.Kind)
	switch cmd.Kind {
	case KindSpawn:
		var p SpawnPayload
		if err := DecodePayload(cmd, &p); err != nil {
			return nil, err
		}
		return map[string]string{"task_id": p.TaskID}, nil
	case "boom":
		return nil, fmt.Errorf("boom")
	default:
		return map[string]bool{"ok": true}, nil
	}
}

func TestServeAndSend(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "service.sock")
	handler := &echoHandler{}
	srv, err := Listen(sock, handler, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	client := NewClient(sock)

	resp, err := client.Send(KindSpawn, SpawnPayload{TaskID: "write-spec"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !resp.OK {
		t.Fatalf("response not ok: %+v", resp)
	}
	var result map[string]string
	if err := DecodeResult(resp, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["task_id"] != "write-spec" {
		t.Fatalf("task_id = %q", result["task_id"])
	}

	resp, err = client.Send("boom", nil)
	if err != nil {
		t.Fatalf("send boom: %v", err)
	}
	if resp.OK {
		t.Fatal("expected failure response")
	}
	if resp.Error != "boom" {
		t.Fatalf("error = %q", resp.Error)
	}

	if _, err := client.Send(KindGraphChanged, nil); err != nil {
		t.Fatalf("send graph_changed: %v", err)
	}
	if len(handler.calls) != 3 {
		t.Fatalf("expected 3 recorded calls, got %v", handler.calls)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "service.sock")

	srv1, err := Listen(sock, &echoHandler{}, nil)
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	// Simulate a crash: the listener is dropped without Close, leaving the
	// socket file on disk.
	_ = srv1

	srv2, err := Listen(sock, &echoHandler{}, nil)
	if err != nil {
		t.Fatalf("second listen should clean up stale socket: %v", err)
	}
	defer srv2.Close()
}
