// Package tools implements the ToolRegistry: the built-in tool set plus
// dynamically discovered MCP tools, composed under one dispatch surface that
// never throws — every failure becomes a Result with Success=false.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xonecas/agentcore/internal/messagestore"
)

// Spec describes a tool's name, description, and JSON-Schema parameters, the
// shape the LLM provider needs to offer it as a callable function.
type Spec struct {
	Name        string
	Description string
	JSONSchema  json.RawMessage
}

// Result is what every tool execution resolves to. The registry never
// returns a Go error to its caller; a failed tool call is a Result with
// Success=false and Error set.
type Result struct {
	Success bool
	Output  string
	Error   string

	// Diff is populated by file_edit/file_multi_edit/file_write so the
	// caller can render a Diff block without re-reading the file.
	Diff *DiffResult
}

// DiffResult carries enough information to build a messagestore Diff block.
type DiffResult struct {
	FilePath        string
	OriginalContent string
	NewContent      string
	Hunks           []messagestore.Hunk
}

// jsonSchema wraps a JSON Schema literal as a Spec's JSONSchema field.
func jsonSchema(s string) json.RawMessage { return json.RawMessage(s) }

func ok(output string) Result { return Result{Success: true, Output: output} }

func fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Context carries per-call state: the working directory and the abort
// signal. Tools must observe Ctx.Done()
// and return promptly with an "aborted" error when it fires.
type Context struct {
	Ctx     context.Context
	Workdir string
}

// Func implements one built-in tool. args is the raw JSON-decoded argument
// object already narrowed to map[string]any.
type Func func(tc Context, args map[string]any) Result

// Tool is one registry entry: static metadata plus its implementation.
type Tool struct {
	Spec Spec
	Run  Func
}
