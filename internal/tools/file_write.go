package tools

import (
	"os"
	"path/filepath"

	"github.com/xonecas/agentcore/internal/treesitter"
)

// newFileWriteTool builds file_write: create a file or replace its entire
// contents. Grounded on the pack's plain create-or-overwrite write tool
// (muxd's fileWriteTool) rather than the hash-anchored edit path, since a
// full overwrite has no prior-content to anchor against.
func newFileWriteTool(tsIndex *treesitter.Index) Tool {
	return Tool{
		Spec: Spec{
			Name:        "file_write",
			Description: "Create a file, or replace its entire contents if it already exists. Parent directories are created as needed.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"path":    {"type": "string", "description": "File path, relative to the working directory or absolute."},
					"content": {"type": "string", "description": "Full file contents."}
				},
				"required": ["path", "content"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			path, _ := args["path"].(string)
			content := strArg(args, "content")

			abs, err := resolvePath(tc.Workdir, path)
			if err != nil {
				return fail("%v", err)
			}

			var original string
			if data, err := os.ReadFile(abs); err == nil {
				original = string(data)
			}

			if dir := filepath.Dir(abs); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fail("creating directory for %s: %v", path, err)
				}
			}
			if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
				return fail("writing %s: %v", path, err)
			}
			if tsIndex != nil {
				go tsIndex.UpdateFile(abs)
			}

			r := ok("wrote " + path)
			r.Diff = &DiffResult{
				FilePath:        abs,
				OriginalContent: original,
				NewContent:      content,
				Hunks:           computeHunks(path, original, content),
			}
			return r
		},
	}
}
