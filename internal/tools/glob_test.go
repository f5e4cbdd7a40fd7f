package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGlobMatchesPattern(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "main_test.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644)

	tool := newGlobTool()
	result := tool.Run(Context{Ctx: context.Background(), Workdir: dir}, map[string]any{"pattern": `_test\.go$`})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if !strings.Contains(result.Output, "main_test.go") {
		t.Fatalf("expected main_test.go in output, got %q", result.Output)
	}
	if strings.Contains(result.Output, "readme.md") {
		t.Fatalf("did not expect readme.md in output, got %q", result.Output)
	}
}

func TestGlobNoMatches(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)

	tool := newGlobTool()
	result := tool.Run(Context{Ctx: context.Background(), Workdir: dir}, map[string]any{"pattern": `nope\.zzz`})
	if !result.Success || result.Output != "no files matched" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGlobRequiresPattern(t *testing.T) {
	dir := t.TempDir()
	tool := newGlobTool()
	result := tool.Run(Context{Ctx: context.Background(), Workdir: dir}, map[string]any{})
	if result.Success {
		t.Fatal("expected failure when pattern is missing")
	}
}
