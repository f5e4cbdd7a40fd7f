package tools

import (
	"fmt"

	"github.com/xonecas/agentcore/internal/shell"
)

const maxBashOutputBytes = 50 * 1024

// newBashTool builds bash: runs a command through the session's
// ShellManager. Streaming and history are already handled by the Manager
// (see internal/shell); this tool only needs the final combined output to
// hand back to the model.
func newBashTool(mgr *shell.Manager) Tool {
	return Tool{
		Spec: Spec{
			Name:        "bash",
			Description: "Run a shell command in the session's persistent working directory. Only one command runs at a time.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "Shell command to run."}
				},
				"required": ["command"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			command := strArg(args, "command")
			if command == "" {
				return fail("command is required")
			}

			output, exitCode, err := mgr.ExecuteCommand(tc.Ctx, command)
			if err == shell.ErrAlreadyRunning {
				return fail("a command is already running")
			}
			if err == shell.ErrAborted {
				return fail("aborted")
			}
			if err != nil {
				return fail("%v", err)
			}

			if len(output) > maxBashOutputBytes {
				output = output[:maxBashOutputBytes] + "\n[truncated]"
			}
			if exitCode != 0 {
				output += fmt.Sprintf("\n(exit code: %d)", exitCode)
			}
			return ok(output)
		},
	}
}
