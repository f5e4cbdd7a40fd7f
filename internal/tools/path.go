package tools

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

func itoa(n int) string { return strconv.Itoa(n) }

// resolvePath resolves file relative to root and enforces that the result
// stays within root. This is the security boundary every file tool runs its
// path argument through before touching the filesystem.
func resolvePath(root, file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("file path is required")
	}

	var abs string
	if filepath.IsAbs(file) {
		abs = filepath.Clean(file)
	} else {
		abs = filepath.Clean(filepath.Join(root, file))
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", file)
	}

	return abs, nil
}

// displayPath renders abs relative to root for tool output, falling back to
// abs if it can't be made relative.
func displayPath(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return abs
	}
	return rel
}

func isBinary(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}
