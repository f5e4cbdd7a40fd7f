package facade

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xonecas/agentcore/internal/config"
	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/store"
)

type fakeProvider struct{ content string }

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ChatStream(ctx context.Context, messages []provider.Message, toolSpecs []provider.Tool) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent, 2)
	ch <- provider.StreamEvent{Type: provider.EventContentDelta, Content: p.content}
	ch <- provider.StreamEvent{Type: provider.EventDone}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) ListModels(ctx context.Context) ([]provider.Model, error) { return nil, nil }
func (p *fakeProvider) Close() error                                             { return nil }

func testOptions(t *testing.T, extra func(*Options)) Options {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		Workdir:    dir,
		SessionDir: filepath.Join(dir, "sessions"),
		Config: &config.CoreConfig{
			TokenLimit:              100000,
			SnapshotThrottleSeconds: 30,
			CompressionWindow:       7,
			InputHistoryCap:         100,
		},
		Provider: &fakeProvider{content: "hello"},
	}
	if extra != nil {
		extra(&opts)
	}
	return opts
}

func TestNewStartsFreshSession(t *testing.T) {
	f, err := New(context.Background(), testOptions(t, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Destroy()

	if f.SessionID() == "" {
		t.Fatal("expected a non-empty session id")
	}
	if len(f.Messages()) != 0 {
		t.Fatalf("expected no messages in a fresh session, got %d", len(f.Messages()))
	}
}

func TestNewRequiresConfig(t *testing.T) {
	opts := testOptions(t, func(o *Options) { o.Config = nil })
	if _, err := New(context.Background(), opts); err == nil {
		t.Fatal("expected an error when Config is nil")
	}
}

func TestNewRequiresProvider(t *testing.T) {
	opts := testOptions(t, func(o *Options) { o.Provider = nil })
	if _, err := New(context.Background(), opts); err == nil {
		t.Fatal("expected an error when Provider is nil")
	}
}

func TestSendMessageRunsLoopAndAppendsAnswer(t *testing.T) {
	f, err := New(context.Background(), testOptions(t, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Destroy()

	if err := f.SendMessage(context.Background(), "hi there", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msgs := f.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected a user message and an assistant message, got %d", len(msgs))
	}
	if got := f.UserInputHistory(); len(got) != 1 || got[0] != "hi there" {
		t.Fatalf("expected input history to record the message, got %v", got)
	}
}

func TestSendMessageMemoryCaptureIsSilent(t *testing.T) {
	f, err := New(context.Background(), testOptions(t, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Destroy()

	if err := f.SendMessage(context.Background(), "#remember this", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(f.Messages()) != 0 {
		t.Fatalf("expected a '#' message to produce no Message, got %d", len(f.Messages()))
	}
}

func TestSendMessageShellCommandRunsViaShell(t *testing.T) {
	f, err := New(context.Background(), testOptions(t, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Destroy()

	if err := f.SendMessage(context.Background(), "!echo hi", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := f.UserInputHistory(); len(got) != 1 || got[0] != "!echo hi" {
		t.Fatalf("expected the shell command to be recorded in input history, got %v", got)
	}
}

func TestResolveSessionFreshWhenNoOptions(t *testing.T) {
	dir := t.TempDir()
	sessions, err := store.Open(dir)
	if err != nil {
		t.Fatalf("opening session store: %v", err)
	}

	_, id, err := resolveSession(sessions, Options{Workdir: dir})
	if err != nil {
		t.Fatalf("resolveSession: %v", err)
	}
	if id == "" {
		t.Fatal("expected a freshly minted session id")
	}
}

func TestResolveSessionRestoreFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	sessions, err := store.Open(dir)
	if err != nil {
		t.Fatalf("opening session store: %v", err)
	}

	_, _, err = resolveSession(sessions, Options{Workdir: dir, RestoreSessionID: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an explicit RestoreSessionID for a missing session to fail")
	}
}

func TestNewSeedsMessagesWithoutDeadlock(t *testing.T) {
	opts := testOptions(t, func(o *Options) {
		o.SeedMessages = []*messagestore.Message{
			{Role: messagestore.RoleUser, Blocks: []*messagestore.Block{
				{Kind: messagestore.BlockText, Content: "seeded"},
			}},
		}
	})

	done := make(chan struct{})
	var f *Facade
	var err error
	go func() {
		f, err = New(context.Background(), opts)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("New did not return — SetMessages likely self-deadlocked")
	}
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Destroy()

	msgs := f.Messages()
	if len(msgs) != 1 || msgs[0].Blocks[0].Content != "seeded" {
		t.Fatalf("expected the seeded message to be present, got %+v", msgs)
	}
}

func TestDestroyFlushesSession(t *testing.T) {
	f, err := New(context.Background(), testOptions(t, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}
