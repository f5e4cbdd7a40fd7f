// Package subagent spawns a depth-limited nested AgentLoop to handle one
// focused task on behalf of a parent conversation. It collapses the
// teacher's two parallel sub-agent implementations (the handler-style
// internal/mcptools/subagent.go and this package's own ProcessTurn-based
// original) into a single shape rebuilt atop internal/agentloop.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xonecas/agentcore/internal/agentloop"
	"github.com/xonecas/agentcore/internal/llm"
	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/tools"
)

const (
	// MaxSubAgentDepth is the maximum recursion depth for sub-agents.
	// Depth 0 = root agent, depth 1 = sub-agent spawned by root.
	MaxSubAgentDepth = 1

	// MaxSubAgentIterations is the default max tool rounds for sub-agents.
	MaxSubAgentIterations = 5

	// MaxAllowedIterations is the upper bound for user-specified max_iterations.
	MaxAllowedIterations = 20
)

// Options configures a sub-agent run.
type Options struct {
	Provider      provider.Provider
	Tools         agentloop.ToolRegistry
	Workdir       string
	Prompt        string
	MaxIterations int
}

// Result reports a sub-agent run outcome. OutputTokens holds the nested
// store's latest total token count (input plus output of the last model
// call); InputTokens is not set.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Run drives a fresh, scoped messagestore.Store through a nested
// agentloop.Loop for exactly one turn and returns the final assistant
// content. The nested Loop has no Persister wired: a sub-agent's transcript
// is a byproduct of the parent turn, not a session of its own.
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("sub-agent cancelled: %v", err)
	}
	if opts.Provider == nil {
		return Result{}, fmt.Errorf("provider is required")
	}
	if opts.Tools == nil {
		return Result{}, fmt.Errorf("tools is required")
	}
	if opts.Prompt == "" {
		return Result{}, fmt.Errorf("prompt is required")
	}

	maxIter := MaxSubAgentIterations
	if opts.MaxIterations > 0 {
		if opts.MaxIterations > MaxAllowedIterations {
			return Result{}, fmt.Errorf("max_iterations too large (max: %d)", MaxAllowedIterations)
		}
		maxIter = opts.MaxIterations
	}

	store := messagestore.New("", opts.Workdir, 0, 0, nil)
	store.AppendUserMessage(opts.Prompt, nil)

	loop := agentloop.New(agentloop.Options{
		Store:         store,
		Tools:         NewFilteredRegistry(opts.Tools, "SubAgent"),
		Provider:      opts.Provider,
		Workdir:       opts.Workdir,
		MaxIterations: maxIter,
		Memory:        SystemPrompt,
	})

	if err := loop.Run(ctx); err != nil {
		return Result{}, fmt.Errorf("sub-agent failed: %v", err)
	}

	content, outTok := finalAnswer(store)
	if content == "" {
		return Result{}, fmt.Errorf("sub-agent produced no final response")
	}

	return Result{Content: content, OutputTokens: outTok}, nil
}

// finalAnswer extracts the last non-empty assistant Answer block's content
// and the latest recorded token usage from a completed sub-agent Store.
func finalAnswer(store *messagestore.Store) (content string, totalTokens int) {
	messages := store.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != messagestore.RoleAssistant {
			continue
		}
		for _, b := range messages[i].Blocks {
			if b.Kind == messagestore.BlockAnswer && b.Content != "" {
				content = b.Content
			}
		}
		if content != "" {
			break
		}
	}
	return content, store.LatestTotalTokens()
}

// FilteredRegistry wraps a ToolRegistry and hides named tools from Specs, so
// a nested Loop cannot see (and therefore cannot request) the tools named.
// Execute still dispatches by name unchanged: filtering only the
// model-visible catalogue is enough, since the model can only call what
// Specs offered it — this is how a sub-agent at MaxSubAgentDepth is kept
// from spawning a further sub-agent.
type FilteredRegistry struct {
	inner   agentloop.ToolRegistry
	exclude map[string]bool
}

// NewFilteredRegistry builds a FilteredRegistry hiding the named tools.
func NewFilteredRegistry(inner agentloop.ToolRegistry, exclude ...string) *FilteredRegistry {
	excl := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excl[name] = true
	}
	return &FilteredRegistry{inner: inner, exclude: excl}
}

func (f *FilteredRegistry) Specs() []tools.Spec {
	specs := f.inner.Specs()
	out := make([]tools.Spec, 0, len(specs))
	for _, s := range specs {
		if !f.exclude[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func (f *FilteredRegistry) Execute(ctx context.Context, workdir, name string, argsJSON json.RawMessage) tools.Result {
	return f.inner.Execute(ctx, workdir, name, argsJSON)
}

// SystemPrompt returns the system prompt for sub-agents: a role description
// plus any project-level AGENTS.md instructions, the same source
// llm.BuildSystemPrompt draws from for the root agent.
func SystemPrompt() string {
	parts := []string{subAgentRolePrompt}
	if instructions := llm.LoadAgentInstructions(); instructions != "" {
		parts = append(parts, instructions)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n---\n\n"))
}

const subAgentRolePrompt = `You are a focused sub-agent working on a specific task assigned by a parent agent.

Your role:
- Complete the assigned task efficiently
- Use the tools available to you as needed
- Provide a clear, concise final response summarizing what you accomplished
- You cannot spawn further sub-agents

Output format:
- Use tools to gather information and make changes
- When done, respond with a summary of what was accomplished
- Be specific about any files modified, tests run, or issues found

You have a limited number of tool rounds - work efficiently.`
