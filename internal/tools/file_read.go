package tools

import (
	"os"
	"strconv"
	"strings"

	"github.com/xonecas/agentcore/internal/config"
	"github.com/xonecas/agentcore/internal/hashline"
)

const maxReadBytes = 50 * 1024

// newFileReadTool builds file_read: a hash-tagged read of a file (or a
// line range within it). Every line in the output carries a <line>:<hash>|
// prefix so a later file_edit call can anchor to it without races against
// concurrent edits. A successful read marks the path in tracker so file_edit
// will accept it.
func newFileReadTool(tracker *FileReadTracker) Tool {
	return Tool{
		Spec: Spec{
			Name:        "file_read",
			Description: "Read a file's contents, hash-tagged by line so file_edit can anchor to exact lines. Optionally limit to a start/end line range.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"path":  {"type": "string", "description": "File path, relative to the working directory or absolute."},
					"start": {"type": "integer", "description": "First line to return, 1-indexed. Default: 1."},
					"end":   {"type": "integer", "description": "Last line to return, inclusive. Default: end of file."}
				},
				"required": ["path"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			path, _ := args["path"].(string)
			abs, err := resolvePath(tc.Workdir, path)
			if err != nil {
				return fail("%v", err)
			}

			if credPath, err := config.CredentialsFilePath(); err == nil && credPath != "" && abs == credPath {
				return fail("access denied: %s contains secrets and cannot be read", credPath)
			}

			data, err := os.ReadFile(abs)
			if err != nil {
				return fail("reading %s: %v", path, err)
			}
			if isBinary(data) {
				return fail("%s appears to be a binary file", path)
			}
			if len(data) > maxReadBytes {
				data = data[:maxReadBytes]
			}

			text := strings.ReplaceAll(string(data), "\r\n", "\n")
			lines := strings.Split(text, "\n")

			start := intArg(args, "start", 1)
			end := intArg(args, "end", len(lines))
			if start < 1 {
				start = 1
			}
			if end > len(lines) {
				end = len(lines)
			}
			if start > end {
				return fail("start line %d is after end line %d", start, end)
			}

			selected := lines[start-1 : end]
			tagged := hashline.TagLines(strings.Join(selected, "\n"), start)

			tracker.MarkRead(abs)
			return ok(hashline.FormatTagged(tagged))
		},
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
