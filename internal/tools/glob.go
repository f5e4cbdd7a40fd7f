package tools

import (
	"fmt"
	"strings"

	"github.com/xonecas/agentcore/internal/filesearch"
)

const maxGlobResults = 500

// newGlobTool builds glob: filename pattern matching over the working
// directory, reusing filesearch's gitignore-aware walker in its filename
// (non-content) mode.
func newGlobTool() Tool {
	return Tool{
		Spec: Spec{
			Name:        "glob",
			Description: "Find files whose path matches a regular expression, honoring .gitignore.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"pattern": {"type": "string", "description": "Regular expression matched against file name and relative path."}
				},
				"required": ["pattern"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			pattern := strArg(args, "pattern")
			if pattern == "" {
				return fail("pattern is required")
			}

			searcher, err := filesearch.NewSearcher(tc.Workdir)
			if err != nil {
				return fail("initializing search: %v", err)
			}
			results, err := searcher.Search(tc.Ctx, filesearch.Options{
				Pattern:       pattern,
				ContentSearch: false,
				MaxResults:    maxGlobResults,
				RootDir:       tc.Workdir,
			})
			if err != nil {
				return fail("%v", err)
			}
			if len(results) == 0 {
				return ok("no files matched")
			}

			var b strings.Builder
			for _, r := range results {
				b.WriteString(r.Path)
				b.WriteByte('\n')
			}
			if len(results) >= maxGlobResults {
				fmt.Fprintf(&b, "... (truncated at %d results)\n", maxGlobResults)
			}
			return ok(strings.TrimRight(b.String(), "\n"))
		},
	}
}
