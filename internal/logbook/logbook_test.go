package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsMostRecentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task-42.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines := book.Tail(3)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestTailOnEmptyLogbookReturnsNil(t *testing.T) {
	dir := t.TempDir()
	book, err := New(filepath.Join(dir, "task-1.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	if lines := book.Tail(10); lines != nil {
		t.Fatalf("expected nil lines for empty logbook, got %v", lines)
	}
}

func TestAppendLevelsAreTagged(t *testing.T) {
	dir := t.TempDir()
	book, err := New(filepath.Join(dir, "task-7.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Info("starting")
	book.Warn("retrying")
	book.Error("giving up")
	lines := book.Tail(3)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[1], "WARN") || !strings.Contains(lines[2], "ERROR") {
		t.Fatalf("unexpected level tags: %v", lines)
	}
}
