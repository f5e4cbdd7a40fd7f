package subagent

import (
	"encoding/json"
	"fmt"

	"github.com/xonecas/agentcore/internal/agentloop"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/tools"
)

type subAgentArgs struct {
	Prompt        string `json:"prompt"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

const toolDescription = `Spawn a sub-agent to handle a focused task. The sub-agent runs with the ` +
	`same tools but cannot spawn further sub-agents. Use this to decompose complex tasks into ` +
	`smaller, manageable pieces. The sub-agent's work is returned as a summary.`

const toolSchema = `{
	"type": "object",
	"properties": {
		"prompt":         {"type": "string", "description": "Task description for the sub-agent. Be specific about what needs to be accomplished and the expected output format."},
		"max_iterations": {"type": "integer", "description": "Maximum tool rounds for the sub-agent (default: 5)"}
	},
	"required": ["prompt"]
}`

// NewTool builds the SubAgent built-in tool. registry is the root Registry
// the nested Loop dispatches through (wrapped with "SubAgent" filtered out of
// its catalogue); prov is the same Provider driving the root Loop.
//
// There is no registry cycle here: tools.Registry never imports this
// package, so RegisterBuiltin(subagent.NewTool(...)) is wired from outside
// both packages, once the root Registry already exists.
func NewTool(prov provider.Provider, registry agentloop.ToolRegistry) tools.Tool {
	return tools.Tool{
		Spec: tools.Spec{
			Name:        "SubAgent",
			Description: toolDescription,
			JSONSchema:  json.RawMessage(toolSchema),
		},
		Run: func(tc tools.Context, args map[string]any) tools.Result {
			raw, err := json.Marshal(args)
			if err != nil {
				return tools.Result{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
			}
			var a subAgentArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return tools.Result{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
			}
			if a.Prompt == "" {
				return tools.Result{Success: false, Error: "prompt is required"}
			}

			result, err := Run(tc.Ctx, Options{
				Provider:      prov,
				Tools:         registry,
				Workdir:       tc.Workdir,
				Prompt:        a.Prompt,
				MaxIterations: a.MaxIterations,
			})
			if err != nil {
				return tools.Result{Success: false, Error: err.Error()}
			}

			return tools.Result{
				Success: true,
				Output: fmt.Sprintf("Sub-agent completed.\n\n%s\n\n---\nToken usage: %d total",
					result.Content, result.OutputTokens),
			}
		},
	}
}
