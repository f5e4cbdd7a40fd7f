package messagestore

import (
	"testing"
	"time"
)

type fakePersister struct {
	saves int
	last  Snapshot
}

func (f *fakePersister) Save(snap Snapshot) error {
	f.saves++
	f.last = snap
	return nil
}

func TestAppendUserMessage(t *testing.T) {
	s := New("sess1", "/tmp/work", 100, time.Minute, nil)
	var got Event
	s.Subscribe(func(e Event) { got = e })

	s.AppendUserMessage("hello", nil)

	if got.Kind != EventUserMessageAdded {
		t.Fatalf("expected UserMessageAdded, got %v", got.Kind)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if len(msgs[0].Blocks) != 1 || msgs[0].Blocks[0].Kind != BlockText || msgs[0].Blocks[0].Content != "hello" {
		t.Fatalf("unexpected blocks: %+v", msgs[0].Blocks)
	}
}

func TestAnswerBlockSealing(t *testing.T) {
	s := New("sess1", "/tmp", 100, time.Minute, nil)
	msg := s.AppendAssistantMessage()
	s.AppendAnswerBlock(msg, "")
	s.UpdateAnswerBlock(msg, "partial")
	s.AppendToolBlock(msg, "t1", "ls")
	// Sealed: update should no longer touch the old Answer block.
	s.UpdateAnswerBlock(msg, "should not apply")

	got := s.Messages()[0]
	if got.Blocks[0].Content != "partial" {
		t.Fatalf("expected sealed answer to stay 'partial', got %q", got.Blocks[0].Content)
	}
}

func TestToolBlockUpdateTransitions(t *testing.T) {
	s := New("sess1", "/tmp", 100, time.Minute, nil)
	msg := s.AppendAssistantMessage()
	s.AppendToolBlock(msg, "t1", "ls")

	running := true
	s.UpdateToolBlock("t1", ToolUpdate{IsRunning: &running})
	if !msg.Blocks[0].IsRunning {
		t.Fatalf("expected isRunning still true")
	}

	done := false
	result := "a\nb"
	success := true
	s.UpdateToolBlock("t1", ToolUpdate{IsRunning: &done, Result: &result, Success: &success})
	if msg.Blocks[0].IsRunning {
		t.Fatalf("expected isRunning false after completion")
	}
	if msg.Blocks[0].Result != "a\nb" {
		t.Fatalf("unexpected result: %q", msg.Blocks[0].Result)
	}

	// false -> true is forbidden.
	s.UpdateToolBlock("t1", ToolUpdate{IsRunning: &running})
	if msg.Blocks[0].IsRunning {
		t.Fatalf("expected isRunning to remain false (forbidden transition ignored)")
	}
}

func TestInputHistoryDedupAndCap(t *testing.T) {
	s := New("sess1", "/tmp", 3, time.Minute, nil)
	s.AddToInputHistory("a")
	s.AddToInputHistory("a")
	s.AddToInputHistory("b")
	s.AddToInputHistory("c")
	s.AddToInputHistory("d")

	hist := s.InputHistory()
	want := []string{"b", "c", "d"}
	if len(hist) != len(want) {
		t.Fatalf("expected %v, got %v", want, hist)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, hist)
		}
	}
}

func TestCompressBlockInsertion(t *testing.T) {
	s := New("sess1", "/tmp", 100, time.Minute, nil)
	for i := 0; i < 5; i++ {
		s.AppendUserMessage("msg", nil)
	}
	s.AppendCompressBlock(2, "summary")

	msgs := s.Messages()
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages after insertion, got %d", len(msgs))
	}
	if msgs[2].Blocks[0].Kind != BlockCompress || msgs[2].Blocks[0].Content != "summary" {
		t.Fatalf("expected compress block at index 2, got %+v", msgs[2])
	}
}

func TestThrottleOncePerWindow(t *testing.T) {
	p := &fakePersister{}
	s := New("sess1", "/tmp", 100, time.Hour, p)
	s.AppendUserMessage("one", nil)
	s.AppendUserMessage("two", nil)
	s.AddToInputHistory("three")

	if p.saves != 1 {
		t.Fatalf("expected exactly one throttled save, got %d", p.saves)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if p.saves != 2 {
		t.Fatalf("expected flush to force a second save, got %d", p.saves)
	}
}

func TestMemoryBlockTargetsMostRecentAssistantMessage(t *testing.T) {
	s := New("sess1", "/tmp", 100, time.Minute, nil)
	s.AppendUserMessage("hi", nil)
	s.AppendAssistantMessage()
	s.AppendAssistantMessage()

	s.AppendMemoryBlock("remember this", MemoryProject, "/tmp/MEMORY.md", true)

	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if len(last.Blocks) != 1 || last.Blocks[0].Kind != BlockMemory {
		t.Fatalf("expected memory block on most recent assistant message, got %+v", last)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	s := New("sess1", "/tmp/work", 100, time.Hour, nil)
	s.AppendUserMessage("hello", nil)
	s.AddToInputHistory("hello")
	s.SetLatestTotalTokens(42)

	snap := s.snapshotLocked()
	restored := Restore(snap, 100, time.Hour, nil)

	if restored.LatestTotalTokens() != 42 {
		t.Fatalf("expected latestTotalTokens 42, got %d", restored.LatestTotalTokens())
	}
	if len(restored.Messages()) != 1 {
		t.Fatalf("expected 1 restored message, got %d", len(restored.Messages()))
	}
	if len(restored.InputHistory()) != 1 || restored.InputHistory()[0] != "hello" {
		t.Fatalf("expected restored input history [hello], got %v", restored.InputHistory())
	}
}

func TestSetMessagesReplacesListAndEmits(t *testing.T) {
	s := New("sess1", "/tmp/work", 100, time.Hour, nil)
	s.AppendUserMessage("first", nil)

	var got Event
	s.Subscribe(func(e Event) { got = e })

	seed := []*Message{
		{Role: RoleUser, Blocks: []*Block{{Kind: BlockText, Content: "seeded"}}},
	}

	done := make(chan struct{})
	go func() {
		s.SetMessages(seed)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetMessages did not return — likely self-deadlocked on s.mu")
	}

	if got.Kind != EventMessagesReplaced {
		t.Fatalf("expected MessagesReplaced, got %v", got.Kind)
	}
	if len(got.Messages) != 1 || got.Messages[0].Blocks[0].Content != "seeded" {
		t.Fatalf("expected the emitted event to carry the seeded message, got %+v", got.Messages)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Blocks[0].Content != "seeded" {
		t.Fatalf("expected SetMessages to replace the prior list, got %+v", msgs)
	}
}
