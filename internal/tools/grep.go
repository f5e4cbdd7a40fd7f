package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xonecas/agentcore/internal/filesearch"
)

const maxGrepMatches = 200

// newGrepTool builds grep: content search across the working directory,
// reusing filesearch's gitignore-aware walker with ContentSearch enabled.
// Optional context_lines surrounds each match the way the teacher's grep
// built-in does, separating distinct matches with a "--" marker.
func newGrepTool() Tool {
	return Tool{
		Spec: Spec{
			Name:        "grep",
			Description: "Search file contents for a regular expression, honoring .gitignore.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"pattern":       {"type": "string", "description": "Regular expression to search for."},
					"path":          {"type": "string", "description": "Directory to search. Default: working directory."},
					"context_lines": {"type": "integer", "description": "Lines of context before and after each match (0-10). Default: 0."}
				},
				"required": ["pattern"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			pattern := strArg(args, "pattern")
			if pattern == "" {
				return fail("pattern is required")
			}
			root := tc.Workdir
			if p := strArg(args, "path"); p != "" {
				abs, err := resolvePath(tc.Workdir, p)
				if err != nil {
					return fail("%v", err)
				}
				root = abs
			}
			contextLines := intArg(args, "context_lines", 0)
			if contextLines < 0 {
				contextLines = 0
			}
			if contextLines > 10 {
				contextLines = 10
			}

			searcher, err := filesearch.NewSearcher(root)
			if err != nil {
				return fail("initializing search: %v", err)
			}
			results, err := searcher.Search(tc.Ctx, filesearch.Options{
				Pattern:       pattern,
				ContentSearch: true,
				MaxResults:    maxGrepMatches,
				RootDir:       root,
			})
			if err != nil {
				return fail("%v", err)
			}
			if len(results) == 0 {
				return ok("no matches")
			}

			var b strings.Builder
			if contextLines == 0 {
				for _, r := range results {
					fmt.Fprintf(&b, "%s:%d:%s\n", r.Path, r.Line, r.Content)
				}
			} else {
				fileLines := map[string][]string{}
				for i, r := range results {
					if i > 0 {
						b.WriteString("--\n")
					}
					lines, ok := fileLines[r.Path]
					if !ok {
						lines = readLinesOrNil(root, r.Path)
						fileLines[r.Path] = lines
					}
					start := r.Line - contextLines
					if start < 1 {
						start = 1
					}
					end := r.Line + contextLines
					if end > len(lines) {
						end = len(lines)
					}
					for n := start; n <= end; n++ {
						marker := "-"
						if n == r.Line {
							marker = ":"
						}
						fmt.Fprintf(&b, "%s%s%d%s%s\n", r.Path, marker, n, marker, lines[n-1])
					}
				}
			}
			if len(results) >= maxGrepMatches {
				fmt.Fprintf(&b, "... (truncated at %d matches)\n", maxGrepMatches)
			}
			return ok(strings.TrimRight(b.String(), "\n"))
		},
	}
}

func readLinesOrNil(root, relPath string) []string {
	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return nil
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
}
