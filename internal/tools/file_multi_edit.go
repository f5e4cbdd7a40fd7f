package tools

import (
	"os"
	"strings"

	"github.com/xonecas/agentcore/internal/treesitter"
)

// multiEditOp is one old_string/new_string replacement in a file_multi_edit
// batch.
type multiEditOp struct {
	OldString   string `json:"old_string"`
	NewString   string `json:"new_string"`
	ReplaceAll  bool   `json:"replace_all"`
}

// newFileMultiEditTool builds file_multi_edit: a batch of literal
// old_string/new_string replacements applied to one file in order, all or
// nothing. Grounded on muxd's fileEditTool, which matches content literally
// rather than by hash anchor — this tool does not require a prior file_read.
func newFileMultiEditTool(tsIndex *treesitter.Index) Tool {
	return Tool{
		Spec: Spec{
			Name:        "file_multi_edit",
			Description: "Apply a sequence of literal find-and-replace edits to one file. Each edit's old_string must match exactly once unless replace_all is set. All edits are applied in order, or none are (on first failure the file is left untouched).",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path, relative to the working directory or absolute."},
					"edits": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"old_string":   {"type": "string"},
								"new_string":   {"type": "string"},
								"replace_all":  {"type": "boolean"}
							},
							"required": ["old_string", "new_string"]
						}
					}
				},
				"required": ["path", "edits"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			path, _ := args["path"].(string)
			abs, err := resolvePath(tc.Workdir, path)
			if err != nil {
				return fail("%v", err)
			}

			rawEdits, _ := args["edits"].([]any)
			if len(rawEdits) == 0 {
				return fail("edits must be a non-empty array")
			}

			data, err := os.ReadFile(abs)
			if err != nil {
				return fail("reading %s: %v", path, err)
			}
			original := string(data)
			content := original

			for i, re := range rawEdits {
				m, _ := re.(map[string]any)
				oldStr := strArg(m, "old_string")
				newStr := strArg(m, "new_string")
				replaceAll, _ := m["replace_all"].(bool)

				if oldStr == "" {
					return fail("edit %d: old_string is required", i+1)
				}
				count := strings.Count(content, oldStr)
				if count == 0 {
					return fail("edit %d: old_string not found in %s", i+1, path)
				}
				if count > 1 && !replaceAll {
					return fail("edit %d: old_string matches %d times in %s; set replace_all or narrow the match", i+1, count, path)
				}

				if replaceAll {
					content = strings.ReplaceAll(content, oldStr, newStr)
				} else {
					content = strings.Replace(content, oldStr, newStr, 1)
				}
			}

			if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
				return fail("writing %s: %v", path, err)
			}
			if tsIndex != nil {
				go tsIndex.UpdateFile(abs)
			}

			r := ok("applied " + itoa(len(rawEdits)) + " edit(s) to " + path)
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
