package messagestore

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Snapshot is the persistence-facing view of a Store's state, handed to a
// Persister. It carries exactly the fields original §6.2's session file
// schema names.
type Snapshot struct {
	ID                string
	Timestamp         time.Time
	Messages          []*Message
	InputHistory      []string
	Workdir           string
	StartedAt         time.Time
	LastActiveAt      time.Time
	LatestTotalTokens int
}

// Persister is the SessionStore-facing dependency a Store schedules
// throttled saves against. Kept as an interface so messagestore never
// imports the store package — the Facade wires the concrete SessionStore in.
type Persister interface {
	Save(snap Snapshot) error
}

// Store is the MessageStore: authoritative in-memory conversation state,
// typed mutators, and synchronous change-event fan-out (original §4.1).
type Store struct {
	mu sync.Mutex

	session   *Session
	startedAt time.Time

	inputHistory    []string
	inputHistoryCap int

	handlers []Handler

	persister       Persister
	throttle        time.Duration
	lastSaveAt      time.Time
	lastSaveAtValid bool
}

// New constructs a Store for a fresh or restored session.
func New(sessionID, workdir string, inputHistoryCap int, throttle time.Duration, persister Persister) *Store {
	now := time.Now()
	if inputHistoryCap <= 0 {
		inputHistoryCap = 100
	}
	return &Store{
		session: &Session{
			ID:           sessionID,
			CreatedAt:    now,
			LastActiveAt: now,
			Workdir:      workdir,
			Messages:     nil,
		},
		startedAt:       now,
		inputHistoryCap: inputHistoryCap,
		throttle:        throttle,
		persister:       persister,
	}
}

// Subscribe registers a Handler. Handlers fire synchronously, in
// registration order, for every subsequent mutator call.
func (s *Store) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Store) emit(e Event) {
	for _, h := range s.handlers {
		h(e)
	}
}

func (s *Store) touch() {
	s.session.LastActiveAt = time.Now()
}

// scheduleSave enforces the 30s (configurable) throttle: a save within the
// window is dropped, the next mutator retries. Failures are logged and
// swallowed (session snapshot integrity is best-effort).
func (s *Store) scheduleSave() {
	if s.persister == nil {
		return
	}
	now := time.Now()
	if s.lastSaveAtValid && now.Sub(s.lastSaveAt) < s.throttle {
		return
	}
	s.lastSaveAt = now
	s.lastSaveAtValid = true
	snap := s.snapshotLocked()
	if err := s.persister.Save(snap); err != nil {
		log.Warn().Err(err).Str("session", s.session.ID).Msg("session snapshot save failed")
	}
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]*Message, len(s.session.Messages))
	for i, m := range s.session.Messages {
		msgs[i] = copyMessage(m)
	}
	return Snapshot{
		ID:                s.session.ID,
		Timestamp:         time.Now(),
		Messages:          msgs,
		InputHistory:      append([]string(nil), s.inputHistory...),
		Workdir:           s.session.Workdir,
		StartedAt:         s.startedAt,
		LastActiveAt:      s.session.LastActiveAt,
		LatestTotalTokens: s.session.LatestTotalTokens,
	}
}

// Flush forces an immediate synchronous save regardless of the throttle.
// destroy() must call this exactly once.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persister == nil {
		return nil
	}
	snap := s.snapshotLocked()
	s.lastSaveAt = time.Now()
	s.lastSaveAtValid = true
	return s.persister.Save(snap)
}

// SessionID returns the current session id.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

// SetSessionID replaces the tracked session id (e.g. on restore) and
// emits SessionIdChanged.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ID = id
	s.touch()
	s.emit(Event{Kind: EventSessionIdChanged, SessionID: id})
	s.scheduleSave()
}

// Messages returns a defensive copy of the full message list.
func (s *Store) Messages() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.session.Messages))
	for i, m := range s.session.Messages {
		out[i] = copyMessage(m)
	}
	return out
}

// LatestTotalTokens returns the most recently recorded usage total.
func (s *Store) LatestTotalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.LatestTotalTokens
}

// InputHistory returns a defensive copy of the de-duplicated input history.
func (s *Store) InputHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputHistory...)
}

// Workdir returns the session's working directory.
func (s *Store) Workdir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Workdir
}

// AppendUserMessage appends a user-role Message with one Text block.
func (s *Store) AppendUserMessage(content string, images []ImagePart) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := &Message{Role: RoleUser, Blocks: []*Block{{Kind: BlockText, Content: content, Images: images}}}
	s.session.Messages = append(s.session.Messages, msg)
	s.touch()
	s.emit(Event{Kind: EventUserMessageAdded, Message: copyMessage(msg), MessageIndex: len(s.session.Messages) - 1})
	s.scheduleSave()
	return msg
}

// AppendAssistantMessage appends a new, empty assistant-role Message.
func (s *Store) AppendAssistantMessage() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := &Message{Role: RoleAssistant}
	s.session.Messages = append(s.session.Messages, msg)
	s.touch()
	s.emit(Event{Kind: EventAssistantMessageAdded, Message: copyMessage(msg), MessageIndex: len(s.session.Messages) - 1})
	s.scheduleSave()
	return msg
}

// AppendAnswerBlock appends a new Answer block to msg. Per the "at most one
// active Answer" invariant, this is only ever called once per assistant
// Message (AgentLoop step 3); subsequent deltas go through UpdateAnswerBlock.
func (s *Store) AppendAnswerBlock(msg *Message, content string) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Block{Kind: BlockAnswer, Content: content}
	msg.Blocks = append(msg.Blocks, b)
	s.touch()
	s.emit(Event{Kind: EventAnswerBlockAdded, Block: copyBlock(b)})
	s.scheduleSave()
	return b
}

// UpdateAnswerBlock overwrites the content of msg's trailing Answer block.
// It is a no-op, emitting no event, if msg has no blocks or the trailing
// block is not an Answer — callers are expected to have called
// AppendAnswerBlock first, per the sealed-answer invariant: once a Tool
// block is appended, the Answer before it is sealed and no longer the
// trailing block.
func (s *Store) UpdateAnswerBlock(msg *Message, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msg.Blocks) == 0 {
		return
	}
	last := msg.Blocks[len(msg.Blocks)-1]
	if last.Kind != BlockAnswer {
		return
	}
	last.Content = content
	s.touch()
	s.emit(Event{Kind: EventAnswerBlockUpdated, Block: copyBlock(last)})
	s.scheduleSave()
}

// AppendToolBlock appends a new Tool block (isRunning=true) to msg. Tool ids
// must be unique session-wide; callers (AgentLoop) are responsible for that,
// per original §8 property 1.
func (s *Store) AppendToolBlock(msg *Message, id, name string) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Block{Kind: BlockTool, ID: id, Name: name, IsRunning: true}
	msg.Blocks = append(msg.Blocks, b)
	s.touch()
	s.emit(Event{Kind: EventToolBlockAdded, Block: copyBlock(b), ToolID: id})
	s.scheduleSave()
	return b
}

// UpdateToolBlock locates the Tool block by id across all Messages and
// overwrites only the supplied fields. isRunning true->false is terminal;
// false->true is forbidden and silently ignored.
func (s *Store) UpdateToolBlock(id string, upd ToolUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.findToolBlockLocked(id)
	if b == nil {
		return
	}
	if upd.Name != nil {
		b.Name = *upd.Name
	}
	if upd.Args != nil {
		b.Args = *upd.Args
	}
	if upd.CompactArgs != nil {
		b.CompactArgs = *upd.CompactArgs
	}
	if upd.IsRunning != nil {
		if b.IsRunning && !*upd.IsRunning {
			b.IsRunning = false
		} else if !b.IsRunning && *upd.IsRunning {
			// false -> true is forbidden; ignore.
		} else {
			b.IsRunning = *upd.IsRunning
		}
	}
	if upd.Success != nil {
		v := *upd.Success
		b.Success = &v
	}
	if upd.Result != nil {
		b.Result = *upd.Result
	}
	if upd.ShortResult != nil {
		b.ShortResult = *upd.ShortResult
	}
	if upd.Error != nil {
		b.Error = *upd.Error
	}
	s.touch()
	s.emit(Event{Kind: EventToolBlockUpdated, Block: copyBlock(b), ToolID: id})
	s.scheduleSave()
}

func (s *Store) findToolBlockLocked(id string) *Block {
	for i := len(s.session.Messages) - 1; i >= 0; i-- {
		msg := s.session.Messages[i]
		for j := len(msg.Blocks) - 1; j >= 0; j-- {
			b := msg.Blocks[j]
			if b.Kind == BlockTool && b.ID == id {
				return b
			}
		}
	}
	return nil
}

// AppendDiffBlock appends a Diff block to msg, for a successful file edit.
func (s *Store) AppendDiffBlock(msg *Message, args DiffBlockArgs) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Block{
		Kind:            BlockDiff,
		FilePath:        args.FilePath,
		OriginalContent: args.OriginalContent,
		NewContent:      args.NewContent,
		Hunks:           args.Hunks,
	}
	msg.Blocks = append(msg.Blocks, b)
	s.touch()
	s.emit(Event{Kind: EventDiffBlockAdded, Block: copyBlock(b)})
	s.scheduleSave()
	return b
}

// AppendErrorBlock appends an Error block to msg.
func (s *Store) AppendErrorBlock(msg *Message, content string) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Block{Kind: BlockError, Content: content}
	msg.Blocks = append(msg.Blocks, b)
	s.touch()
	s.emit(Event{Kind: EventErrorBlockAdded, Block: copyBlock(b)})
	s.scheduleSave()
	return b
}

// AppendCompressBlock inserts a new user-role Message carrying a single
// Compress block at insertIndex. It never removes Messages.
func (s *Store) AppendCompressBlock(insertIndex int, content string) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if insertIndex < 0 {
		insertIndex = 0
	}
	if insertIndex > len(s.session.Messages) {
		insertIndex = len(s.session.Messages)
	}
	b := &Block{Kind: BlockCompress, Content: content}
	msg := &Message{Role: RoleUser, Blocks: []*Block{b}}
	s.session.Messages = append(s.session.Messages, nil)
	copy(s.session.Messages[insertIndex+1:], s.session.Messages[insertIndex:])
	s.session.Messages[insertIndex] = msg
	s.touch()
	s.emit(Event{Kind: EventCompressBlockAdded, Block: copyBlock(b), InsertIndex: insertIndex})
	s.scheduleSave()
	return b
}

// AppendMemoryBlock appends exactly one Memory block to the most recent
// assistant Message, per the boundary behavior in original §8.
func (s *Store) AppendMemoryBlock(content string, memType MemoryType, storagePath string, success bool) *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	var target *Message
	for i := len(s.session.Messages) - 1; i >= 0; i-- {
		if s.session.Messages[i].Role == RoleAssistant {
			target = s.session.Messages[i]
			break
		}
	}
	if target == nil {
		target = &Message{Role: RoleAssistant}
		s.session.Messages = append(s.session.Messages, target)
	}
	b := &Block{Kind: BlockMemory, Content: content, MemoryType: memType, StoragePath: storagePath, MemorySuccess: success}
	target.Blocks = append(target.Blocks, b)
	s.touch()
	s.emit(Event{Kind: EventMemoryBlockAdded, Block: copyBlock(b)})
	s.scheduleSave()
	return b
}

// AddCommandOutputMessage creates an assistant Message with one
// CommandOutput block (isRunning=true), per ShellManager.executeCommand
// step 2.
func (s *Store) AddCommandOutputMessage(command string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Block{Kind: BlockCommandOutput, Command: command, IsRunning: true}
	msg := &Message{Role: RoleAssistant, Blocks: []*Block{b}}
	s.session.Messages = append(s.session.Messages, msg)
	s.touch()
	s.emit(Event{Kind: EventCommandOutputAdded, Message: copyMessage(msg), Command: command})
	s.scheduleSave()
	return msg
}

// UpdateCommandOutputMessage appends to the trailing CommandOutput block's
// output and emits CommandOutputUpdated with the output accumulated so far.
func (s *Store) UpdateCommandOutputMessage(msg *Message, chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msg.Blocks) == 0 {
		return
	}
	b := msg.Blocks[len(msg.Blocks)-1]
	if b.Kind != BlockCommandOutput {
		return
	}
	b.Output += chunk
	s.touch()
	s.emit(Event{Kind: EventCommandOutputUpdated, Block: copyBlock(b), Output: b.Output})
	s.scheduleSave()
}

// CompleteCommandMessage marks the trailing CommandOutput block finished.
func (s *Store) CompleteCommandMessage(msg *Message, exitCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msg.Blocks) == 0 {
		return
	}
	b := msg.Blocks[len(msg.Blocks)-1]
	if b.Kind != BlockCommandOutput {
		return
	}
	b.IsRunning = false
	ec := exitCode
	b.ExitCode = &ec
	s.touch()
	s.emit(Event{Kind: EventCommandOutputComplete, Block: copyBlock(b), ExitCode: exitCode})
	s.scheduleSave()
}

// SetMessages replaces the full message list wholesale (session restore).
func (s *Store) SetMessages(msgs []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp[i] = copyMessage(m)
	}
	s.session.Messages = cp
	s.touch()
	snapshot := make([]*Message, len(cp))
	for i, m := range cp {
		snapshot[i] = copyMessage(m)
	}
	s.emit(Event{Kind: EventMessagesReplaced, Messages: snapshot})
	s.scheduleSave()
}

// Clear empties the message list and resets latestTotalTokens.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Messages = nil
	s.session.LatestTotalTokens = 0
	s.touch()
	s.emit(Event{Kind: EventMessagesReplaced, Messages: nil})
	s.scheduleSave()
}

// SetLatestTotalTokens overwrites (never accumulates) the usage total.
func (s *Store) SetLatestTotalTokens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.LatestTotalTokens = n
	s.touch()
	s.emit(Event{Kind: EventLatestTokensChanged, LatestTotalTokens: n})
	s.scheduleSave()
}

// AddToInputHistory is a no-op if s equals the last element; otherwise it
// appends and trims from the front to the configured cap.
func (s *Store) AddToInputHistory(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputHistory) > 0 && s.inputHistory[len(s.inputHistory)-1] == entry {
		return
	}
	s.inputHistory = append(s.inputHistory, entry)
	if len(s.inputHistory) > s.inputHistoryCap {
		s.inputHistory = s.inputHistory[len(s.inputHistory)-s.inputHistoryCap:]
	}
	s.touch()
	s.emit(Event{Kind: EventInputHistoryChanged, InputHistory: append([]string(nil), s.inputHistory...)})
	s.scheduleSave()
}
