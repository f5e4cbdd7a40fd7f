package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xonecas/agentcore/internal/messagestore"
)

func newTestManager(t *testing.T) (*Manager, *messagestore.Store) {
	t.Helper()
	dir := t.TempDir()
	sh := New(dir, DefaultBlockFuncs())
	store := messagestore.New("sess1", dir, 100, time.Hour, nil)
	historyPath := filepath.Join(dir, "history.log")
	return NewManager(sh, store, historyPath), store
}

func TestExecuteCommandStreamsOutput(t *testing.T) {
	m, store := newTestManager(t)

	if _, _, err := m.ExecuteCommand(context.Background(), "echo hello"); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}

	msgs := store.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	blocks := msgs[0].Blocks
	if len(blocks) != 1 || blocks[0].Kind != messagestore.BlockCommandOutput {
		t.Fatalf("expected a CommandOutput block, got %+v", blocks)
	}
	if !strings.Contains(blocks[0].Output, "hello") {
		t.Fatalf("expected output to contain 'hello', got %q", blocks[0].Output)
	}
	if blocks[0].IsRunning {
		t.Fatalf("expected command to be marked complete")
	}
	if blocks[0].ExitCode == nil || *blocks[0].ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", blocks[0].ExitCode)
	}
}

func TestExecuteCommandRejectsConcurrent(t *testing.T) {
	m, _ := newTestManager(t)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, _, err := m.ExecuteCommand(context.Background(), "sleep 0.2")
		done <- err
	}()

	// Give the first command a moment to claim the running flag.
	go func() { close(started) }()
	<-started
	time.Sleep(20 * time.Millisecond)

	if _, _, err := m.ExecuteCommand(context.Background(), "echo busy"); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first command failed: %v", err)
	}
}

func TestAbortCommandSetsSignalExitCode(t *testing.T) {
	m, store := newTestManager(t)

	done := make(chan error, 1)
	go func() {
		_, _, err := m.ExecuteCommand(context.Background(), "sleep 5")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	m.AbortCommand()

	if err := <-done; err != ErrAborted {
		t.Fatalf("expected ErrAborted after AbortCommand, got %v", err)
	}

	msgs := store.Messages()
	block := msgs[len(msgs)-1].Blocks[0]
	if block.ExitCode == nil || *block.ExitCode != ShellSignalExitCode {
		t.Fatalf("expected exit code %d after abort, got %v", ShellSignalExitCode, block.ExitCode)
	}
}

func TestAppendHistoryWritesTabSeparatedLine(t *testing.T) {
	m, _ := newTestManager(t)

	if _, _, err := m.ExecuteCommand(context.Background(), "true"); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}

	data, err := os.ReadFile(m.historyPath)
	if err != nil {
		t.Fatalf("reading history file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 history line, got %d: %v", len(lines), lines)
	}
	fields := strings.Split(lines[0], "\t")
	if len(fields) != 4 {
		t.Fatalf("expected 4 tab-separated fields, got %d: %v", len(fields), fields)
	}
	if fields[3] != "true" {
		t.Fatalf("expected command field 'true', got %q", fields[3])
	}
}
