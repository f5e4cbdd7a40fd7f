package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/xonecas/agentcore/internal/mcpclient"
	"github.com/xonecas/agentcore/internal/shell"
	"github.com/xonecas/agentcore/internal/treesitter"
	"github.com/xonecas/agentcore/internal/webcache"
)

// Registry is the ToolRegistry: a name -> Tool mapping composed of built-ins
// registered once at construction and MCP tools recomputed on every call
// from the connected servers. Execute never returns a Go error — every
// outcome, including an unknown tool name or a cancelled context, is a
// Result with Success=false.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Tool
	order    []string
	mcp      *mcpclient.Client
	schemas  *schemaCache
}

// Deps are the shared subsystems built-in tools need. Nil fields disable
// the tools that need them (e.g. no ShellManager means no bash tool).
type Deps struct {
	Tracker    *FileReadTracker
	Shell      *shell.Manager
	WebCache   *webcache.Cache
	ExaAPIKey  string
	Scratchpad *Scratchpad
	TSIndex    *treesitter.Index
}

// New builds a Registry with the standard built-in tool set wired in.
// mcpClient may be nil if MCP support is disabled for this session.
func New(mcpClient *mcpclient.Client, deps Deps) *Registry {
	r := &Registry{
		builtins: map[string]Tool{},
		mcp:      mcpClient,
		schemas:  newSchemaCache(),
	}
	if deps.Tracker == nil {
		deps.Tracker = NewFileReadTracker()
	}
	for _, t := range builtinTools(deps) {
		r.register(t)
	}
	return r
}

func builtinTools(d Deps) []Tool {
	tools := []Tool{
		newFileReadTool(d.Tracker),
		newFileEditTool(d.Tracker, d.TSIndex),
		newFileWriteTool(d.TSIndex),
		newFileMultiEditTool(d.TSIndex),
		newFileDeleteTool(),
		newListDirTool(),
		newGlobTool(),
		newGrepTool(),
		newGitStatusTool(),
		newGitDiffTool(),
	}
	if d.Shell != nil {
		tools = append(tools, newBashTool(d.Shell))
	}
	if d.WebCache != nil {
		tools = append(tools, newWebFetchTool(d.WebCache))
		tools = append(tools, newWebSearchTool(d.WebCache, d.ExaAPIKey))
	}
	if d.Scratchpad != nil {
		tools = append(tools, newTodoWriteTool(d.Scratchpad))
	}
	return tools
}

func (r *Registry) register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[t.Spec.Name]; !exists {
		r.order = append(r.order, t.Spec.Name)
	}
	r.builtins[t.Spec.Name] = t
}

// RegisterBuiltin adds (or replaces) one built-in tool after construction.
// Used to wire SubAgent in, since it depends on the AgentLoop that in turn
// depends on this Registry.
func (r *Registry) RegisterBuiltin(t Tool) {
	r.register(t)
}

// Specs returns every currently callable tool's metadata: built-ins in
// registration order, followed by MCP tools sorted by namespaced name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.builtins[name].Spec)
	}
	r.mu.RUnlock()

	if r.mcp != nil {
		for _, t := range r.mcp.Tools() {
			specs = append(specs, Spec{Name: t.Name, Description: t.Description, JSONSchema: t.InputSchema})
		}
	}
	return specs
}

// ToolNames returns every callable tool name, sorted.
func (r *Registry) ToolNames() []string {
	specs := r.Specs()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	sort.Strings(names)
	return names
}

// Execute dispatches name to its built-in implementation or, failing that,
// to the MCP server that owns it. ctx's cancellation is surfaced as a
// Result, never a panic or Go error.
func (r *Registry) Execute(ctx context.Context, workdir, name string, argsJSON json.RawMessage) Result {
	if err := ctx.Err(); err != nil {
		return fail("aborted")
	}

	var args map[string]any
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return fail("invalid arguments: %v", err)
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	r.mu.RLock()
	tool, isBuiltin := r.builtins[name]
	r.mu.RUnlock()

	if isBuiltin {
		if err := r.schemas.validate(name, tool.Spec.JSONSchema, args); err != nil {
			return fail("%v", err)
		}
		return tool.Run(Context{Ctx: ctx, Workdir: workdir}, args)
	}

	if r.mcp != nil && mcpclient.IsNamespacedName(name) {
		text, isErr := r.mcp.CallTool(ctx, name, args)
		if isErr {
			return fail("%s", text)
		}
		return ok(text)
	}

	return fail("Tool '%s' not found", name)
}
