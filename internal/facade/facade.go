// Package facade implements the Facade: the single public surface over
// MessageStore, AgentLoop, ToolRegistry, ShellManager, McpClient, and
// SessionStore, per original §6.4. It owns special-input-mode detection
// (§4.6.5) so callers never touch AgentLoop or MessageStore directly.
package facade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/agentloop"
	"github.com/xonecas/agentcore/internal/config"
	"github.com/xonecas/agentcore/internal/llm"
	"github.com/xonecas/agentcore/internal/mcpclient"
	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/shell"
	"github.com/xonecas/agentcore/internal/store"
	"github.com/xonecas/agentcore/internal/subagent"
	"github.com/xonecas/agentcore/internal/tools"
	"github.com/xonecas/agentcore/internal/treesitter"
	"github.com/xonecas/agentcore/internal/webcache"
)

// Callbacks is the change-event fan-out original §6.4 names: one callback
// per MessageStore event kind (registered as a single messagestore.Handler)
// plus the three Facade-level callbacks. Any field may be nil.
type Callbacks struct {
	OnEvent              messagestore.Handler
	LoadingChange        func(bool)
	McpServersChange     func([]mcpclient.ServerState)
	CommandRunningChange func(bool)
}

// Options configures Facade construction.
type Options struct {
	Workdir    string
	SessionDir string

	// RestoreSessionID, if set, loads that exact session; a load failure is
	// fatal (original §7's SessionIO row: "restore is load-or-fail").
	RestoreSessionID string

	// ContinueLast restores the most recently active session for Workdir,
	// if one exists; a missing session is not an error, a fresh one starts.
	ContinueLast bool

	// SeedMessages pre-populates a fresh session's message list (e.g. a
	// scripted test fixture). Ignored when restoring.
	SeedMessages []*messagestore.Message

	Config    *config.CoreConfig
	Provider  provider.Provider
	// Model identifies the model the Provider is driving, used only to pick
	// the right system-prompt variant (see llm.SelectPrompt). May be empty.
	Model     string
	Callbacks Callbacks

	// AutoConnectMCP connects every configured MCP server during construct.
	AutoConnectMCP bool
}

// Facade is the single public surface described by original §6.4.
type Facade struct {
	cfg     *config.CoreConfig
	workdir string

	store    *messagestore.Store
	sessions *store.SessionStore
	tools    *tools.Registry
	mcp      *mcpclient.Client
	shell    *shell.Manager
	provider provider.Provider
	loop     *agentloop.Loop

	cache *webcache.Cache

	onCommandRunningChange func(bool)
}

// New constructs a Facade: loads or starts a session, wires the
// ToolRegistry (including SubAgent), connects MCP if requested, and builds
// the AgentLoop over the resulting Store.
func New(ctx context.Context, opts Options) (*Facade, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("facade: config is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("facade: provider is required")
	}

	sessionDir := opts.SessionDir
	if sessionDir == "" {
		sessionDir = opts.Config.SessionDir
	}
	sessions, err := store.Open(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("facade: opening session store: %w", err)
	}

	snap, sessionID, err := resolveSession(sessions, opts)
	if err != nil {
		return nil, err
	}

	persister := sessions
	throttle := time.Duration(opts.Config.SnapshotThrottleSeconds) * time.Second
	var msgStore *messagestore.Store
	if snap.ID != "" {
		snap.Workdir = opts.Workdir
		msgStore = messagestore.Restore(snap, opts.Config.InputHistoryCap, throttle, persister)
	} else {
		msgStore = messagestore.New(sessionID, opts.Workdir, opts.Config.InputHistoryCap, throttle, persister)
		if len(opts.SeedMessages) > 0 {
			msgStore.SetMessages(opts.SeedMessages)
		}
	}
	if opts.Callbacks.OnEvent != nil {
		msgStore.Subscribe(opts.Callbacks.OnEvent)
	}

	sh := shell.New(opts.Workdir, shell.DefaultBlockFuncs())
	historyPath := sessionDir + "/bash_history.log"
	shellMgr := shell.NewManager(sh, msgStore, historyPath)

	mcpClient := mcpclient.NewClient()
	if opts.Callbacks.McpServersChange != nil {
		mcpClient.Subscribe(func(e mcpclient.Event) { opts.Callbacks.McpServersChange(e.Servers) })
	}
	if err := mcpClient.Initialize(ctx, opts.Workdir, opts.AutoConnectMCP); err != nil {
		log.Warn().Err(err).Msg("facade: mcp initialize failed, continuing without mcp servers")
	}

	ttl := time.Duration(opts.Config.Cache.CacheTTLOrDefault()) * time.Hour
	cache, err := webcache.Open(sessionDir+"/webcache.db", ttl)
	if err != nil {
		log.Warn().Err(err).Msg("facade: web cache open failed, WebFetch/WebSearch disabled")
		cache = nil
	}

	tsIndex := treesitter.NewIndex(opts.Workdir)
	if err := tsIndex.Build(); err != nil {
		log.Warn().Err(err).Msg("facade: tree-sitter index build failed, project outline may be incomplete")
	}

	registry := tools.New(mcpClient, tools.Deps{
		Shell:      shellMgr,
		WebCache:   cache,
		Scratchpad: &tools.Scratchpad{},
		TSIndex:    tsIndex,
	})

	loop := agentloop.New(agentloop.Options{
		Store:             msgStore,
		Tools:             registry,
		Provider:          opts.Provider,
		Workdir:           opts.Workdir,
		TokenLimit:        opts.Config.TokenLimit,
		CompressionWindow: opts.Config.CompressionWindow,
		OnLoadingChange:   opts.Callbacks.LoadingChange,
		Memory:            func() string { return llm.BuildSystemPrompt(opts.Model, tsIndex) },
	})

	registry.RegisterBuiltin(subagent.NewTool(opts.Provider, registry))

	return &Facade{
		cfg:                    opts.Config,
		workdir:                opts.Workdir,
		store:                  msgStore,
		sessions:               sessions,
		tools:                  registry,
		mcp:                    mcpClient,
		shell:                  shellMgr,
		provider:               opts.Provider,
		loop:                   loop,
		cache:                  cache,
		onCommandRunningChange: opts.Callbacks.CommandRunningChange,
	}, nil
}

// resolveSession implements original §4.2's construct-time restore rule:
// an explicit RestoreSessionID is load-or-fail; ContinueLast is
// load-if-present; otherwise a fresh session id is minted.
func resolveSession(sessions *store.SessionStore, opts Options) (messagestore.Snapshot, string, error) {
	if opts.RestoreSessionID != "" {
		snap, err := sessions.Load(opts.RestoreSessionID)
		if err != nil {
			return messagestore.Snapshot{}, "", fmt.Errorf("facade: restoring session %q: %w", opts.RestoreSessionID, err)
		}
		return snap, snap.ID, nil
	}
	if opts.ContinueLast {
		snap, err := sessions.Latest(opts.Workdir)
		if err == nil {
			return snap, snap.ID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("facade: loading latest session failed, starting fresh")
		}
	}
	return messagestore.Snapshot{}, uuid.NewString(), nil
}

// SessionID returns the current session's id.
func (f *Facade) SessionID() string { return f.store.SessionID() }

// Messages returns the current message log.
func (f *Facade) Messages() []*messagestore.Message { return f.store.Messages() }

// LatestTotalTokens returns the token usage recorded by the most recent
// model call.
func (f *Facade) LatestTotalTokens() int { return f.store.LatestTotalTokens() }

// UserInputHistory returns the input-history ring.
func (f *Facade) UserInputHistory() []string { return f.store.InputHistory() }

// IsCommandRunning reports whether a shell command is currently executing.
func (f *Facade) IsCommandRunning() bool { return f.shell.IsRunning() }

// SendMessage implements original §4.6.5: content starting with "#" is a
// memory-capture request handled entirely by a later SaveMemory call (no
// user Message, no AgentLoop run); content starting with "!" is a shell
// command; everything else is a normal conversational turn.
func (f *Facade) SendMessage(ctx context.Context, content string, images []messagestore.ImagePart) error {
	singleLine := !strings.Contains(content, "\n")

	if singleLine && strings.HasPrefix(content, "#") {
		return nil
	}

	if singleLine && strings.HasPrefix(content, "!") {
		f.store.AddToInputHistory(content)
		command := strings.TrimPrefix(content, "!")
		if f.onCommandRunningChange != nil {
			f.onCommandRunningChange(true)
			defer f.onCommandRunningChange(false)
		}
		_, _, err := f.shell.ExecuteCommand(ctx, command)
		return err
	}

	f.store.AddToInputHistory(content)
	f.store.AppendUserMessage(content, images)
	return f.loop.Run(ctx)
}

// SaveMemory appends a Memory block to the most recent assistant Message,
// per original §8's boundary behavior.
func (f *Facade) SaveMemory(content string, memType messagestore.MemoryType, storagePath string) {
	f.store.AppendMemoryBlock(content, memType, storagePath, true)
}

// AbortMessage raises both the AgentLoop's cancel tokens and aborts any
// in-flight shell command, per original §5's "abortMessage signals both
// tokens and kills the shell; safe to call at any time."
func (f *Facade) AbortMessage() {
	f.loop.Abort()
	f.shell.AbortCommand()
}

// AbortAIMessage raises only the AgentLoop's cancel tokens.
func (f *Facade) AbortAIMessage() { f.loop.Abort() }

// AbortBashCommand aborts only an in-flight shell command.
func (f *Facade) AbortBashCommand() { f.shell.AbortCommand() }

// ClearMessages resets the MessageStore's message log.
func (f *Facade) ClearMessages() { f.store.Clear() }

// ConnectMCPServer connects a configured-but-disconnected MCP server.
func (f *Facade) ConnectMCPServer(ctx context.Context, name string) error {
	return f.mcp.Connect(ctx, name)
}

// DisconnectMCPServer disconnects an MCP server.
func (f *Facade) DisconnectMCPServer(name string) error {
	return f.mcp.Disconnect(name)
}

// ReconnectMCPServer disconnects then reconnects an MCP server.
func (f *Facade) ReconnectMCPServer(ctx context.Context, name string) error {
	return f.mcp.Reconnect(ctx, name)
}

// MCPServerStatuses returns the current status of every configured MCP
// server.
func (f *Facade) MCPServerStatuses() []mcpclient.ServerState {
	return f.mcp.ServerStatuses()
}

// Destroy flushes the session, aborts any in-flight work, and releases MCP
// and cache resources, per original §6.4.
func (f *Facade) Destroy() error {
	f.loop.Abort()
	f.shell.AbortCommand()
	f.mcp.Cleanup()
	if f.cache != nil {
		if err := f.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("facade: closing web cache failed")
		}
	}
	return f.store.Flush()
}
