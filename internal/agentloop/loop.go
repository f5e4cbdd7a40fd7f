// Package agentloop implements the AgentLoop: the recursive
// model-call -> tool-call(s) -> model-call driver described in original
// §4.6, generalized from the teacher's internal/llm/loop.go ProcessTurn
// (which drove a single flat []provider.Message history through an
// mcp.Proxy) into a driver that reads and mutates a messagestore.Store
// directly, dispatches through a tools.Registry, and classifies failures
// through the agentcore error taxonomy.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xonecas/agentcore/internal/agentcore"
	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/tools"
)

// abortedError is the sentinel string the tool runtime (internal/tools)
// uses for a cancelled execution; comparing against it is how runOnce
// tells a genuine tool failure (ToolExecution, recursion continues) apart
// from an observed abort (Cancellation, recursion stops silently).
const abortedError = "aborted"

// defaultMaxIterations safety-caps the tail-recursive loop per the design
// note in original §9 ("implementations may impose a safety cap and
// surface a terminating Error block if reached"); the model is expected
// to terminate on its own by returning no tool calls well before this.
const defaultMaxIterations = 100

// ToolRegistry is the surface a Loop needs from a tool dispatcher. Accepting
// the interface rather than *tools.Registry directly lets internal/subagent
// hand a nested Loop a view of the root Registry with SubAgent itself
// filtered out of Specs, so a sub-agent cannot see or spawn further
// sub-agents without needing a second concrete Registry type.
type ToolRegistry interface {
	Specs() []tools.Spec
	Execute(ctx context.Context, workdir, name string, argsJSON json.RawMessage) tools.Result
}

// Options configures a Loop. Provider, Store, and Tools are required;
// everything else has a sane zero-value default.
type Options struct {
	Store    *messagestore.Store
	Tools    ToolRegistry
	Provider provider.Provider

	Workdir string

	// TokenLimit and CompressionWindow implement original §4.6.3; zero
	// TokenLimit disables compression entirely.
	TokenLimit        int
	CompressionWindow int

	// MaxIterations safety-caps tool-calling rounds; 0 uses
	// defaultMaxIterations.
	MaxIterations int

	// Memory is called once per model call to build the "memory" string
	// forwarded in the payload alongside the message history, per
	// original §6.1 ("The caller also passes memory ... The core does
	// not inspect these beyond forwarding them"). May be nil.
	Memory func() string

	// OnLoadingChange mirrors the Facade's LoadingChange callback (§6.4).
	OnLoadingChange func(bool)
}

// Loop is the AgentLoop: one instance drives one Store's root-level
// conversation. Sub-agent recursion (original §9's "implementer wiring
// sub-agents") is a different axis entirely — internal/subagent spawns an
// independent Loop over a scoped Store, it does not reenter this one.
type Loop struct {
	opts Options

	mu         sync.Mutex
	loading    bool
	apiCancel  context.CancelFunc
	toolCancel context.CancelFunc
}

// New builds a Loop. Workdir defaults to opts.Store.Workdir() if empty.
func New(opts Options) *Loop {
	if opts.Workdir == "" {
		opts.Workdir = opts.Store.Workdir()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	return &Loop{opts: opts}
}

// IsLoading reports whether a Run is currently in flight.
func (l *Loop) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Abort raises both the current api and tool cancel tokens. Idempotent:
// calling it when no tokens are installed, or calling it repeatedly, is a
// no-op beyond the first effective cancellation — context.CancelFunc is
// itself idempotent, so no extra bookkeeping is needed here (original §8
// property 5: abortMessage is idempotent).
func (l *Loop) Abort() {
	l.mu.Lock()
	apiCancel, toolCancel := l.apiCancel, l.toolCancel
	l.mu.Unlock()
	if apiCancel != nil {
		apiCancel()
	}
	if toolCancel != nil {
		toolCancel()
	}
}

func (l *Loop) setLoading(v bool) {
	l.mu.Lock()
	l.loading = v
	l.mu.Unlock()
	if l.opts.OnLoadingChange != nil {
		l.opts.OnLoadingChange(v)
	}
}

// Run drives the conversation forward from whatever state the Store is
// currently in (a user Message just appended, or restored mid-turn) until
// the model stops requesting tools, the caller aborts, or a hard error is
// reported. This implements original §4.6.2 end to end; the spec's
// tail-recursive run(recursionDepth+1) is reshaped into the iterative loop
// the design note in §9 explicitly invites ("may be reshaped as an
// iterative loop: while hasToolOps && !aborted && depth++ < bound").
//
// Admission control (§4.6.2 step 1): if a Run is already in flight, this
// returns nil immediately without touching the Store.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	l.mu.Unlock()
	if l.opts.OnLoadingChange != nil {
		l.opts.OnLoadingChange(true)
	}
	defer l.setLoading(false)

	for iteration := 0; ; iteration++ {
		if iteration >= l.opts.MaxIterations {
			if msg := lastAssistantMessage(l.opts.Store.Messages()); msg != nil {
				l.opts.Store.AppendErrorBlock(msg, "maximum tool-call round limit exceeded for this turn")
			}
			return nil
		}

		hasToolOps, aborted, err := l.runOnce(ctx)
		if err != nil {
			return err
		}
		if aborted || !hasToolOps {
			return nil
		}
	}
}

func lastAssistantMessage(messages []*messagestore.Message) *messagestore.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == messagestore.RoleAssistant {
			return messages[i]
		}
	}
	return nil
}

// runOnce performs one model-call round (original §4.6.2 steps 2-8
// inclusive). It returns whether the round issued any tool calls, whether
// the round ended in a user/caller abort, and a hard error (ModelCall
// transport failures that are not cancellations propagate here only if
// the caller wants them surfaced beyond the Error block already written —
// in practice Run never receives a non-nil err from a well-behaved
// provider, since runOnce itself converts provider errors into Error
// blocks per the ModelCall disposition in original §7).
func (l *Loop) runOnce(parentCtx context.Context) (hasToolOps bool, aborted bool, err error) {
	apiCtx, apiCancel := context.WithCancel(parentCtx)
	toolCtx, toolCancel := context.WithCancel(parentCtx)
	l.mu.Lock()
	l.apiCancel = apiCancel
	l.toolCancel = toolCancel
	l.mu.Unlock()
	defer func() {
		apiCancel()
		toolCancel()
		l.mu.Lock()
		l.apiCancel = nil
		l.toolCancel = nil
		l.mu.Unlock()
	}()

	msg := l.opts.Store.AppendAssistantMessage()
	l.opts.Store.AppendAnswerBlock(msg, "")

	history := BuildPayload(l.opts.Store.Messages())
	if l.opts.Memory != nil {
		if mem := l.opts.Memory(); mem != "" {
			history = append([]provider.Message{{Role: "system", Content: mem}}, history...)
		}
	}
	providerTools := toProviderTools(l.opts.Tools.Specs())

	resp, callErr := l.callModel(apiCtx, history, providerTools, msg)
	if callErr != nil {
		if agentcore.IsCancelled(callErr) {
			return false, true, nil
		}
		l.opts.Store.AppendErrorBlock(msg, callErr.Error())
		return false, false, nil
	}

	if resp.Content != "" {
		l.opts.Store.UpdateAnswerBlock(msg, resp.Content)
	}
	if resp.InputTokens > 0 || resp.OutputTokens > 0 {
		l.opts.Store.SetLatestTotalTokens(resp.InputTokens + resp.OutputTokens)
	}

	l.maybeCompress(apiCtx, resp)

	for _, tc := range resp.ToolCalls {
		hasToolOps = true

		if toolCtx.Err() != nil || apiCtx.Err() != nil {
			return hasToolOps, true, nil
		}

		block := l.opts.Store.AppendToolBlock(msg, tc.ID, tc.Name)

		args, rawArgs, parseErr := parseToolArgs(tc.Arguments)
		if parseErr != nil {
			l.opts.Store.UpdateToolBlock(block.ID, messagestore.ToolUpdate{
				IsRunning: boolPtr(false),
				Success:   boolPtr(false),
				Error:     strPtr(parseErr.Error()),
			})
			l.opts.Store.AppendErrorBlock(msg, "Failed to parse tool arguments: "+parseErr.Error())
			return false, false, nil
		}

		pretty, _ := json.MarshalIndent(args, "", "  ")
		compact := compactArgs(tc.Name, args)
		l.opts.Store.UpdateToolBlock(block.ID, messagestore.ToolUpdate{
			Args:        strPtr(string(pretty)),
			IsRunning:   boolPtr(true),
			Name:        strPtr(tc.Name),
			CompactArgs: strPtr(compact),
		})

		result := l.opts.Tools.Execute(toolCtx, l.opts.Workdir, tc.Name, rawArgs)

		upd := messagestore.ToolUpdate{IsRunning: boolPtr(false), Success: boolPtr(result.Success)}
		if result.Success {
			upd.Result = strPtr(result.Output)
			upd.ShortResult = strPtr(shortResult(result.Output))
		} else {
			upd.Error = strPtr(result.Error)
			upd.Result = strPtr("Tool execution failed: " + result.Error)
		}
		l.opts.Store.UpdateToolBlock(block.ID, upd)

		if result.Success && result.Diff != nil {
			l.opts.Store.AppendDiffBlock(msg, messagestore.DiffBlockArgs{
				FilePath:        result.Diff.FilePath,
				OriginalContent: result.Diff.OriginalContent,
				NewContent:      result.Diff.NewContent,
				Hunks:           result.Diff.Hunks,
			})
		}

		if !result.Success && result.Error == abortedError {
			return hasToolOps, true, nil
		}
	}

	return hasToolOps, false, nil
}

// callModel runs one streamed chat completion, folding deltas into the
// Answer block live as they arrive (generalizing the teacher's OnDelta UI
// callback into a direct Store mutation, since there is no separate UI
// layer here) and accumulating tool calls.
func (l *Loop) callModel(ctx context.Context, history []provider.Message, toolSpecs []provider.Tool, msg *messagestore.Message) (*provider.ChatResponse, error) {
	stream, err := l.opts.Provider.ChatStream(ctx, history, toolSpecs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, agentcore.Wrap(agentcore.KindCancellation, ctx.Err())
		}
		return nil, agentcore.Wrap(agentcore.KindModelCall, err)
	}

	var resp provider.ChatResponse
	var content strings.Builder
	tca := newToolCallAccumulator()

	for evt := range stream {
		switch evt.Type {
		case provider.EventContentDelta:
			content.WriteString(evt.Content)
			resp.Content = content.String()
			l.opts.Store.UpdateAnswerBlock(msg, resp.Content)
		case provider.EventReasoningDelta:
			resp.Reasoning += evt.Content
		case provider.EventToolCallBegin:
			tca.begin(evt)
		case provider.EventToolCallDelta:
			tca.delta(evt)
		case provider.EventUsage:
			if evt.InputTokens > resp.InputTokens {
				resp.InputTokens = evt.InputTokens
			}
			if evt.OutputTokens > resp.OutputTokens {
				resp.OutputTokens = evt.OutputTokens
			}
		case provider.EventError:
			if ctx.Err() != nil {
				return nil, agentcore.Wrap(agentcore.KindCancellation, ctx.Err())
			}
			return nil, agentcore.Wrap(agentcore.KindModelCall, evt.Err)
		case provider.EventDone:
		}
	}

	if ctx.Err() != nil {
		return nil, agentcore.Wrap(agentcore.KindCancellation, ctx.Err())
	}

	resp.ToolCalls = tca.finalize()
	return &resp, nil
}

func toProviderTools(specs []tools.Spec) []provider.Tool {
	out := make([]provider.Tool, len(specs))
	for i, s := range specs {
		out[i] = provider.Tool{Name: s.Name, Description: s.Description, Parameters: s.JSONSchema}
	}
	return out
}

// parseToolArgs implements original §4.6.2's argument-parsing rule: empty
// or whitespace-only arguments become {}; anything else must parse as a
// JSON object. Returns the parsed map plus the normalized raw JSON the
// registry should execute against.
func parseToolArgs(raw json.RawMessage) (map[string]any, json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return map[string]any{}, json.RawMessage("{}"), nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, json.RawMessage(trimmed), nil
}

// compactArgs builds a short human-readable summary of a tool call's
// arguments for the Tool block's compactArgs field. No pack repo
// implements this hook (original §4.3's optional formatCompactArgs has no
// teacher analogue), so this is a single shared heuristic rather than a
// per-tool formatter; it must never fail loudly, per "swallow errors" in
// original §4.6.2.
func compactArgs(name string, args map[string]any) (result string) {
	defer func() {
		if recover() != nil {
			result = ""
		}
	}()
	for _, key := range []string{"path", "command", "pattern", "query", "url"} {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return truncate(s, 80)
			}
		}
	}
	return ""
}

// shortResult truncates a tool's output to its first line, capped, for
// the Tool block's shortResult field (a compact summary shown alongside
// the full result).
func shortResult(output string) string {
	line := output
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		line = output[:idx]
	}
	return truncate(line, 200)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
