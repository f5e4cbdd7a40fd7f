package tools

import "os"

// newFileDeleteTool builds file_delete. This has no direct teacher
// precedent — the teacher never exposes file deletion to the agent — but the
// specification names it as a built-in alongside read/write/edit/multi-edit,
// so it's implemented fresh, as a thin, deliberately unsurprising wrapper
// around os.Remove within the same path-escape boundary as every other file
// tool.
func newFileDeleteTool() Tool {
	return Tool{
		Spec: Spec{
			Name:        "file_delete",
			Description: "Delete a file.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path, relative to the working directory or absolute."}
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
			if info, err := os.Stat(abs); err != nil {
				return fail("%s does not exist", path)
			} else if info.IsDir() {
				return fail("%s is a directory, not a file", path)
			}
			if err := os.Remove(abs); err != nil {
				return fail("deleting %s: %v", path, err)
			}
			return ok("deleted " + path)
		},
	}
}
