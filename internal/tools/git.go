package tools

import (
	"os/exec"
	"strings"
)

// runGit executes git in workdir. A `git diff` that exits 1 with empty
// stderr means "no differences", not a failure — this convention is
// preserved from the teacher's git tool, which hit the same gotcha.
func runGit(workdir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workdir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if exitErr, isExit := err.(*exec.ExitError); isExit && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			return stdout.String(), nil
		}
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return "", &gitError{msg}
	}
	return stdout.String(), nil
}

type gitError struct{ msg string }

func (e *gitError) Error() string { return e.msg }

// newGitStatusTool builds git_status.
func newGitStatusTool() Tool {
	return Tool{
		Spec: Spec{
			Name:        "git_status",
			Description: "Show the working tree status (git status --short, or --long if requested).",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"long": {"type": "boolean", "description": "Use the long status format. Default: false (short)."}
				}
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			gitArgs := []string{"status", "--short"}
			if long, _ := args["long"].(bool); long {
				gitArgs = []string{"status"}
			}
			out, err := runGit(tc.Workdir, gitArgs...)
			if err != nil {
				return fail("%v", err)
			}
			if strings.TrimSpace(out) == "" {
				return ok("nothing to commit, working tree clean")
			}
			return ok(out)
		},
	}
}

// newGitDiffTool builds git_diff.
func newGitDiffTool() Tool {
	return Tool{
		Spec: Spec{
			Name:        "git_diff",
			Description: "Show unstaged (or staged) changes, optionally scoped to one file.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"file":   {"type": "string", "description": "Limit the diff to this file."},
					"staged": {"type": "boolean", "description": "Show staged changes (git diff --cached). Default: false."}
				}
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			gitArgs := []string{"diff"}
			staged, _ := args["staged"].(bool)
			if staged {
				gitArgs = append(gitArgs, "--cached")
			}
			if file := strArg(args, "file"); file != "" {
				gitArgs = append(gitArgs, "--", file)
			}
			out, err := runGit(tc.Workdir, gitArgs...)
			if err != nil {
				return fail("%v", err)
			}
			if strings.TrimSpace(out) == "" {
				if staged {
					return ok("no staged changes")
				}
				return ok("no unstaged changes")
			}
			return ok(out)
		},
	}
}
