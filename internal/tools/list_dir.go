package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var hiddenDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".idea": true, ".vscode": true,
	"node_modules": true, "__pycache__": true,
}

const maxListEntries = 500

// newListDirTool builds list_dir: flat or recursive directory listing,
// grounded on muxd's listFilesTool minus its glob branch (glob is its own
// built-in here, see glob.go).
func newListDirTool() Tool {
	return Tool{
		Spec: Spec{
			Name:        "list_dir",
			Description: "List files and directories under a path. Skips VCS and dependency directories (.git, node_modules, etc).",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"path":      {"type": "string", "description": "Directory to list. Default: working directory."},
					"recursive": {"type": "boolean", "description": "Walk subdirectories. Default: false."}
				}
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			path, _ := args["path"].(string)
			if path == "" {
				path = "."
			}
			recursive, _ := args["recursive"].(bool)

			abs, err := resolvePath(tc.Workdir, path)
			if err != nil {
				return fail("%v", err)
			}
			info, err := os.Stat(abs)
			if err != nil {
				return fail("%s: %v", path, err)
			}
			if !info.IsDir() {
				return fail("%s is not a directory", path)
			}

			var out string
			if recursive {
				out, err = listRecursive(abs, maxListEntries)
			} else {
				out, err = listFlat(abs, maxListEntries)
			}
			if err != nil {
				return fail("%v", err)
			}
			return ok(out)
		},
	}
}

func listFlat(dir string, limit int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var lines []string
	for _, e := range entries {
		if hiddenDirs[e.Name()] {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
		if len(lines) >= limit {
			break
		}
	}
	return finishListing(lines, limit), nil
}

func listRecursive(root string, limit int) (string, error) {
	var lines []string
	errLimit := fmt.Errorf("limit reached")

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (hiddenDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		lines = append(lines, rel)
		if len(lines) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && err != errLimit {
		return "", err
	}

	sort.Strings(lines)
	return finishListing(lines, limit), nil
}

func finishListing(lines []string, limit int) string {
	if len(lines) == 0 {
		return "(empty)"
	}
	out := strings.Join(lines, "\n")
	if len(lines) >= limit {
		out += fmt.Sprintf("\n... (truncated at %d entries)", limit)
	}
	return out
}
