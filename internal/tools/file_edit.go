package tools

import (
	"fmt"
	"os"
	"strings"

	"github.com/xonecas/agentcore/internal/hashline"
	"github.com/xonecas/agentcore/internal/treesitter"
)

// newFileEditTool builds file_edit: a single hash-anchored replace/insert/
// delete operation against a file that must already have been read this
// session (file_read populates tracker). This mirrors the teacher's
// anchor-based editing discipline, which lets the tool reject a stale edit
// instead of silently corrupting a file someone else changed underneath the
// agent.
func newFileEditTool(tracker *FileReadTracker, tsIndex *treesitter.Index) Tool {
	return Tool{
		Spec: Spec{
			Name:        "file_edit",
			Description: "Apply one replace, insert, or delete operation to a file previously read with file_read. Anchors (line+hash) must come from that read's output; a mismatch means the file changed and needs a fresh file_read.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path, relative to the working directory or absolute."},
					"op":   {"type": "string", "enum": ["replace", "insert", "delete"]},
					"start_line": {"type": "integer", "description": "For replace/delete: first anchored line."},
					"start_hash": {"type": "string", "description": "For replace/delete: hash of start_line."},
					"end_line":   {"type": "integer", "description": "For replace/delete: last anchored line (inclusive)."},
					"end_hash":   {"type": "string", "description": "For replace/delete: hash of end_line."},
					"after_line": {"type": "integer", "description": "For insert: line to insert after."},
					"after_hash": {"type": "string", "description": "For insert: hash of after_line."},
					"content": {"type": "string", "description": "For replace/insert: new text."}
				},
				"required": ["path", "op"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			path, _ := args["path"].(string)
			op, _ := args["op"].(string)

			abs, err := resolvePath(tc.Workdir, path)
			if err != nil {
				return fail("%v", err)
			}
			if !tracker.WasRead(abs) {
				return fail("%s must be read with file_read before it can be edited", path)
			}

			data, err := os.ReadFile(abs)
			if err != nil {
				return fail("reading %s: %v", path, err)
			}
			original := strings.ReplaceAll(string(data), "\r\n", "\n")
			lines := strings.Split(original, "\n")

			var result []string
			switch op {
			case "replace":
				result, err = applyReplace(lines, args)
			case "insert":
				result, err = applyInsert(lines, args)
			case "delete":
				result, err = applyDelete(lines, args)
			default:
				return fail("unknown op %q: must be replace, insert, or delete", op)
			}
			if err != nil {
				return fail("%v", err)
			}

			newContent := strings.Join(result, "\n")
			if err := os.WriteFile(abs, []byte(newContent), 0o600); err != nil {
				return fail("writing %s: %v", path, err)
			}
			if tsIndex != nil {
				go tsIndex.UpdateFile(abs)
			}

			tagged := hashline.TagLines(newContent, 1)
			r := ok(fmt.Sprintf("edited %s\n\n%s", path, hashline.FormatTagged(tagged)))
			r.Diff = &DiffResult{
				FilePath:        abs,
				OriginalContent: original,
				NewContent:      newContent,
				Hunks:           computeHunks(path, original, newContent),
			}
			return r
		},
	}
}

func anchorArg(args map[string]any, lineKey, hashKey string) hashline.Anchor {
	return hashline.Anchor{Num: intArg(args, lineKey, 0), Hash: strArg(args, hashKey)}
}

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func applyReplace(lines []string, args map[string]any) ([]string, error) {
	start := anchorArg(args, "start_line", "start_hash")
	end := anchorArg(args, "end_line", "end_hash")
	if err := hashline.ValidateRange(start, end, lines); err != nil {
		return nil, err
	}
	content := strArg(args, "content")
	var newLines []string
	if content != "" {
		newLines = strings.Split(content, "\n")
	}
	out := append([]string{}, lines[:start.Num-1]...)
	out = append(out, newLines...)
	out = append(out, lines[end.Num:]...)
	return out, nil
}

func applyInsert(lines []string, args map[string]any) ([]string, error) {
	after := anchorArg(args, "after_line", "after_hash")
	if err := after.Validate(lines); err != nil {
		return nil, err
	}
	content := strArg(args, "content")
	newLines := strings.Split(content, "\n")
	out := append([]string{}, lines[:after.Num]...)
	out = append(out, newLines...)
	out = append(out, lines[after.Num:]...)
	return out, nil
}

func applyDelete(lines []string, args map[string]any) ([]string, error) {
	start := anchorArg(args, "start_line", "start_hash")
	end := anchorArg(args, "end_line", "end_hash")
	if err := hashline.ValidateRange(start, end, lines); err != nil {
		return nil, err
	}
	out := append([]string{}, lines[:start.Num-1]...)
	out = append(out, lines[end.Num:]...)
	return out, nil
}
