package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/messagestore"
)

// ShellSignalExitCode is the exit code synthesized when a command is
// aborted. There is no real child process group to signal, so abortCommand
// cancels the command's context and this code stands in for what a SIGKILL
// would have produced.
const ShellSignalExitCode = 130

// streamWriter wraps a byte buffer and calls onChunk for each Write,
// mirroring the teacher's streaming-callback pattern for incremental tool
// output delivery.
type streamWriter struct {
	buf     *bytes.Buffer
	onChunk func(string)
}

func (w *streamWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if n > 0 && w.onChunk != nil {
		w.onChunk(string(p[:n]))
	}
	return n, err
}

// Manager wraps a Shell with the single-command-in-flight discipline,
// streamed output delivery into a MessageStore, abort, and bash-history
// logging described by original §4.4.
type Manager struct {
	mu sync.Mutex

	sh          *Shell
	store       *messagestore.Store
	historyPath string

	running bool
	cancel  context.CancelFunc
}

// NewManager creates a Manager over sh, delivering command output into
// store and appending completed commands to historyPath (empty disables
// history logging).
func NewManager(sh *Shell, store *messagestore.Store, historyPath string) *Manager {
	return &Manager{sh: sh, store: store, historyPath: historyPath}
}

// IsRunning reports whether a command is currently executing.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ErrAlreadyRunning is returned by ExecuteCommand when a command is already
// in flight — only one command may run at a time per original §4.4 step 1.
var ErrAlreadyRunning = fmt.Errorf("a command is already running")

// ErrAborted is returned by ExecuteCommand when the command's context was
// cancelled via AbortCommand (or the caller's own ctx) before it completed
// on its own.
var ErrAborted = fmt.Errorf("aborted")

// ExecuteCommand runs command, streaming output as it arrives into a
// CommandOutput message on store, and returns once execution completes or
// is aborted via AbortCommand. It returns the full merged stdout+stderr
// output and exit code so a bash tool built atop the Manager can report
// them back to the caller, in addition to what's already visible in store.
// A cancelled context yields (output, ShellSignalExitCode, ErrAborted) so
// callers can distinguish a killed command from a normal completion.
func (m *Manager) ExecuteCommand(ctx context.Context, command string) (string, int, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return "", 0, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
	}()

	msg := m.store.AddCommandOutputMessage(command)

	var stdout, stderr bytes.Buffer
	onChunk := func(chunk string) {
		m.store.UpdateCommandOutputMessage(msg, chunk)
	}
	sw := &streamWriter{buf: &stdout, onChunk: onChunk}

	startedAt := time.Now()
	execErr := m.sh.ExecStream(runCtx, command, sw, &stderr)

	if stderr.Len() > 0 {
		m.store.UpdateCommandOutputMessage(msg, stderr.String())
	}

	exitCode := ExitCode(execErr)
	aborted := runCtx.Err() == context.Canceled
	if aborted {
		exitCode = ShellSignalExitCode
	}
	m.store.CompleteCommandMessage(msg, exitCode)

	m.appendHistory(command, exitCode, startedAt)

	output := stdout.String() + stderr.String()
	if aborted {
		return output, exitCode, ErrAborted
	}
	return output, exitCode, nil
}

// AbortCommand cancels the in-flight command's context, standing in for
// sending SIGKILL to the whole process group. A no-op if nothing is running.
func (m *Manager) AbortCommand() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// appendHistory records command in the bash-history file as
// "timestamp\tworkdir\texitcode\tcommand", one entry per line. Failures are
// logged and swallowed — history is best-effort, not load-bearing.
func (m *Manager) appendHistory(command string, exitCode int, at time.Time) {
	if m.historyPath == "" {
		return
	}
	if dir := filepath.Dir(m.historyPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			log.Warn().Err(err).Str("path", m.historyPath).Msg("failed to create bash history dir")
			return
		}
	}
	f, err := os.OpenFile(m.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.Warn().Err(err).Str("path", m.historyPath).Msg("failed to open bash history file")
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%s\t%d\t%s\n", at.UTC().Format(time.RFC3339), m.sh.Dir(), exitCode, command)
	if _, err := f.WriteString(line); err != nil {
		log.Warn().Err(err).Str("path", m.historyPath).Msg("failed to append bash history entry")
	}
}
