package agentloop

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/tools"
)

// fakeProvider replays one scripted []provider.StreamEvent slice per
// ChatStream call, round-robining if exhausted, so a test can script a
// multi-round tool-calling conversation.
type fakeProvider struct {
	rounds [][]provider.StreamEvent
	calls  int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ChatStream(ctx context.Context, messages []provider.Message, toolSpecs []provider.Tool) (<-chan provider.StreamEvent, error) {
	n := int(atomic.AddInt32(&p.calls, 1)) - 1
	if n >= len(p.rounds) {
		n = len(p.rounds) - 1
	}
	events := p.rounds[n]
	ch := make(chan provider.StreamEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) ListModels(ctx context.Context) ([]provider.Model, error) { return nil, nil }
func (p *fakeProvider) Close() error                                             { return nil }

// blockingProvider never sends a Done event until released, used to
// exercise Abort mid-stream.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) ChatStream(ctx context.Context, messages []provider.Message, toolSpecs []provider.Tool) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		select {
		case <-p.release:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (p *blockingProvider) ListModels(ctx context.Context) ([]provider.Model, error) { return nil, nil }
func (p *blockingProvider) Close() error                                             { return nil }

// fakeRegistry dispatches to a map of named handlers.
type fakeRegistry struct {
	specs    []tools.Spec
	handlers map[string]func(args json.RawMessage) tools.Result
}

func (r *fakeRegistry) Specs() []tools.Spec { return r.specs }

func (r *fakeRegistry) Execute(ctx context.Context, workdir, name string, argsJSON json.RawMessage) tools.Result {
	h, ok := r.handlers[name]
	if !ok {
		return tools.Result{Success: false, Error: "unknown tool " + name}
	}
	return h(argsJSON)
}

func newStore() *messagestore.Store {
	return messagestore.New("sess", "/tmp/work", 0, 0, nil)
}

func TestRunAnswerOnlyNoToolCalls(t *testing.T) {
	store := newStore()
	store.AppendUserMessage("hello", nil)

	prov := &fakeProvider{rounds: [][]provider.StreamEvent{
		{
			{Type: provider.EventContentDelta, Content: "hi there"},
			{Type: provider.EventDone},
		},
	}}
	loop := New(Options{Store: store, Tools: &fakeRegistry{}, Provider: prov})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	msgs := store.Messages()
	assistant := msgs[len(msgs)-1]
	if assistant.Role != messagestore.RoleAssistant {
		t.Fatalf("expected last message to be assistant, got %v", assistant.Role)
	}
	if assistant.Blocks[0].Content != "hi there" {
		t.Fatalf("expected answer content 'hi there', got %q", assistant.Blocks[0].Content)
	}
	if prov.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", prov.calls)
	}
}

func TestRunSingleToolRoundTrip(t *testing.T) {
	store := newStore()
	store.AppendUserMessage("list files", nil)

	toolCallEvents := []provider.StreamEvent{
		{Type: provider.EventToolCallBegin, ToolCallIndex: 0, ToolCallID: "t1", ToolCallName: "ListDir"},
		{Type: provider.EventToolCallDelta, ToolCallIndex: 0, ToolCallArgs: `{"path":"."}`},
		{Type: provider.EventDone},
	}
	finalEvents := []provider.StreamEvent{
		{Type: provider.EventContentDelta, Content: "done"},
		{Type: provider.EventDone},
	}
	prov := &fakeProvider{rounds: [][]provider.StreamEvent{toolCallEvents, finalEvents}}

	var executedArgs json.RawMessage
	registry := &fakeRegistry{
		specs: []tools.Spec{{Name: "ListDir"}},
		handlers: map[string]func(args json.RawMessage) tools.Result{
			"ListDir": func(args json.RawMessage) tools.Result {
				executedArgs = args
				return tools.Result{Success: true, Output: "a.go\nb.go"}
			},
		},
	}

	loop := New(Options{Store: store, Tools: registry, Provider: prov})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if prov.calls != 2 {
		t.Fatalf("expected two model calls (tool round + follow-up), got %d", prov.calls)
	}
	if string(executedArgs) != `{"path":"."}` {
		t.Fatalf("unexpected tool args: %s", executedArgs)
	}

	msgs := store.Messages()
	toolMsg := msgs[1]
	if toolMsg.Blocks[1].Kind != messagestore.BlockTool {
		t.Fatalf("expected a Tool block, got %+v", toolMsg.Blocks[1])
	}
	if toolMsg.Blocks[1].Result != "a.go\nb.go" {
		t.Fatalf("unexpected tool result: %q", toolMsg.Blocks[1].Result)
	}
	if !*toolMsg.Blocks[1].Success {
		t.Fatalf("expected tool block to record success")
	}
}

func TestRunToolFailureContinuesLoop(t *testing.T) {
	store := newStore()
	store.AppendUserMessage("do it", nil)

	toolCallEvents := []provider.StreamEvent{
		{Type: provider.EventToolCallBegin, ToolCallIndex: 0, ToolCallID: "t1", ToolCallName: "Bash"},
		{Type: provider.EventToolCallDelta, ToolCallIndex: 0, ToolCallArgs: `{}`},
		{Type: provider.EventDone},
	}
	finalEvents := []provider.StreamEvent{
		{Type: provider.EventContentDelta, Content: "recovered"},
		{Type: provider.EventDone},
	}
	prov := &fakeProvider{rounds: [][]provider.StreamEvent{toolCallEvents, finalEvents}}
	registry := &fakeRegistry{
		specs: []tools.Spec{{Name: "Bash"}},
		handlers: map[string]func(args json.RawMessage) tools.Result{
			"Bash": func(args json.RawMessage) tools.Result {
				return tools.Result{Success: false, Error: "command not found"}
			},
		},
	}

	loop := New(Options{Store: store, Tools: registry, Provider: prov})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if prov.calls != 2 {
		t.Fatalf("a failed (non-aborted) tool call must still produce a follow-up model call, got %d calls", prov.calls)
	}

	toolBlock := store.Messages()[1].Blocks[1]
	if toolBlock.Success == nil || *toolBlock.Success {
		t.Fatalf("expected tool block to record failure")
	}
	if toolBlock.Error != "command not found" {
		t.Fatalf("unexpected tool error: %q", toolBlock.Error)
	}
}

func TestRunMaxIterationsAppendsErrorBlock(t *testing.T) {
	store := newStore()
	store.AppendUserMessage("loop forever", nil)

	toolCallEvents := []provider.StreamEvent{
		{Type: provider.EventToolCallBegin, ToolCallIndex: 0, ToolCallID: "t1", ToolCallName: "Noop"},
		{Type: provider.EventToolCallDelta, ToolCallIndex: 0, ToolCallArgs: `{}`},
		{Type: provider.EventDone},
	}
	prov := &fakeProvider{rounds: [][]provider.StreamEvent{toolCallEvents}}
	registry := &fakeRegistry{
		specs: []tools.Spec{{Name: "Noop"}},
		handlers: map[string]func(args json.RawMessage) tools.Result{
			"Noop": func(args json.RawMessage) tools.Result { return tools.Result{Success: true, Output: "ok"} },
		},
	}

	loop := New(Options{Store: store, Tools: registry, Provider: prov, MaxIterations: 2})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	msgs := store.Messages()
	last := msgs[len(msgs)-1]
	var sawError bool
	for _, b := range last.Blocks {
		if b.Kind == messagestore.BlockError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected an Error block once the iteration cap is reached, got %+v", last.Blocks)
	}
}

func TestAbortStopsLoopWithoutError(t *testing.T) {
	store := newStore()
	store.AppendUserMessage("hang", nil)

	prov := &blockingProvider{release: make(chan struct{})}
	loop := New(Options{Store: store, Tools: &fakeRegistry{}, Provider: prov})

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	// Give Run a moment to reach the blocked ChatStream call before aborting.
	time.Sleep(20 * time.Millisecond)
	loop.Abort()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("aborted Run should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Abort")
	}
	if loop.IsLoading() {
		t.Fatal("expected loading to be false after Run returns")
	}
}

func TestRunIsNoOpWhileAlreadyLoading(t *testing.T) {
	store := newStore()
	store.AppendUserMessage("go", nil)

	prov := &blockingProvider{release: make(chan struct{})}
	loop := New(Options{Store: store, Tools: &fakeRegistry{}, Provider: prov})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("second concurrent Run should be a silent no-op, got error %v", err)
	}

	close(prov.release)
	wg.Wait()
}
