// Package messagestore is the authoritative in-memory conversation state:
// the typed-block Message log, its mutators, and its synchronous
// change-event fan-out. It generalizes the teacher's per-field callback set
// (MessageCallback, DeltaCallback, ToolCallCallback, UsageCallback in
// internal/llm/loop.go) into one typed event sum, per the "callback soup ->
// event fan-out" re-architecture.
package messagestore

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSubAgent  Role = "subAgent"
)

// BlockKind tags the variant a Block holds.
type BlockKind string

const (
	BlockText          BlockKind = "text"
	BlockAnswer        BlockKind = "answer"
	BlockTool          BlockKind = "tool"
	BlockDiff          BlockKind = "diff"
	BlockCommandOutput BlockKind = "commandOutput"
	BlockError         BlockKind = "error"
	BlockCompress      BlockKind = "compress"
	BlockMemory        BlockKind = "memory"
)

// MemoryType distinguishes project-scoped from user-scoped memory captures.
type MemoryType string

const (
	MemoryProject MemoryType = "project"
	MemoryUser    MemoryType = "user"
)

// Hunk is one line of a computed unified-diff hunk.
type Hunk struct {
	Value   string `json:"value"`
	Added   bool   `json:"added,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// ImagePart is one image attachment on a user Text block.
type ImagePart struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
	Mime   string `json:"mime,omitempty"`
}

// Block is the tagged leaf of a Message. Only the fields relevant to Kind
// are populated; this mirrors the session JSON file on disk directly, one
// flat object per block, which keeps save/load a straight (de)serialize.
type Block struct {
	Kind BlockKind `json:"kind"`

	// Text, Answer, Error, Compress
	Content string      `json:"content,omitempty"`
	Images  []ImagePart `json:"images,omitempty"`

	// Tool
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Args        string `json:"args,omitempty"`
	CompactArgs string `json:"compactArgs,omitempty"`
	IsRunning   bool   `json:"isRunning,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	Result      string `json:"result,omitempty"`
	ShortResult string `json:"shortResult,omitempty"`
	Error       string `json:"error,omitempty"`

	// Diff
	FilePath        string `json:"filePath,omitempty"`
	OriginalContent string `json:"originalContent,omitempty"`
	NewContent      string `json:"newContent,omitempty"`
	Hunks           []Hunk `json:"hunks,omitempty"`

	// CommandOutput (shares IsRunning with Tool)
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`

	// Memory
	MemoryType    MemoryType `json:"memoryType,omitempty"`
	MemorySuccess bool       `json:"memorySuccess,omitempty"`
	StoragePath   string     `json:"storagePath,omitempty"`
}

// Message is one record in the session log.
type Message struct {
	Role           Role     `json:"role"`
	Blocks         []*Block `json:"blocks"`
	OriginalDeltas *string  `json:"originalDeltas,omitempty"`
}

// Session is the full conversation state owned by one MessageStore.
type Session struct {
	ID                string     `json:"id"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastActiveAt      time.Time  `json:"lastActiveAt"`
	Workdir           string     `json:"workdir"`
	LatestTotalTokens int        `json:"latestTotalTokens"`
	Messages          []*Message `json:"messages"`
}

// ToolUpdate carries the optional fields updateToolBlock may overwrite.
// A nil pointer, IsRunning included, means "leave unchanged"; a non-nil
// pointer is written even when it points at an empty string (see
// UpdateToolBlock).
type ToolUpdate struct {
	Name        *string
	Args        *string
	CompactArgs *string
	IsRunning   *bool
	Success     *bool
	Result      *string
	ShortResult *string
	Error       *string
}

// DiffBlockArgs is the input to AppendDiffBlock.
type DiffBlockArgs struct {
	FilePath        string
	OriginalContent string
	NewContent      string
	Hunks           []Hunk
}

func copyMessage(m *Message) *Message {
	if m == nil {
		return nil
	}
	cp := &Message{Role: m.Role, OriginalDeltas: m.OriginalDeltas}
	cp.Blocks = make([]*Block, len(m.Blocks))
	for i, b := range m.Blocks {
		cp.Blocks[i] = copyBlock(b)
	}
	return cp
}

func copyBlock(b *Block) *Block {
	if b == nil {
		return nil
	}
	cp := *b
	if b.Success != nil {
		v := *b.Success
		cp.Success = &v
	}
	if b.ExitCode != nil {
		v := *b.ExitCode
		cp.ExitCode = &v
	}
	if b.Hunks != nil {
		cp.Hunks = append([]Hunk(nil), b.Hunks...)
	}
	if b.Images != nil {
		cp.Images = append([]ImagePart(nil), b.Images...)
	}
	return &cp
}
