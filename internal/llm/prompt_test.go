package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSelectPromptPicksByModelFamily(t *testing.T) {
	cases := map[string]string{
		"claude-opus-4":   anthropicPrompt,
		"gemini-2.5-pro":  geminiPrompt,
		"gpt-4o":          gptPrompt,
		"o1-preview":      gptPrompt,
		"qwen2.5-coder":   qwenPrompt,
		"some-other-model": anthropicPrompt,
	}
	for model, want := range cases {
		if got := SelectPrompt(model); got != want {
			t.Errorf("SelectPrompt(%q): expected the matching family prompt, got a different one", model)
		}
	}
}

func TestSelectPromptIsCaseInsensitive(t *testing.T) {
	if SelectPrompt("Claude-3-Haiku") != anthropicPrompt {
		t.Fatal("expected case-insensitive matching for claude models")
	}
}

// chdir switches the process working directory for the duration of the test
// and restores it afterward. LoadAgentInstructions walks os.Getwd() upward,
// so tests that exercise it need real directory changes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadAgentInstructionsFindsProjectFile(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("project rules"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("HOME", t.TempDir())
	chdir(t, sub)

	got := LoadAgentInstructions()
	if !strings.Contains(got, "project rules") {
		t.Fatalf("expected AGENTS.md content from an ancestor directory, got %q", got)
	}
}

func TestLoadAgentInstructionsNoneFound(t *testing.T) {
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	chdir(t, root)

	if got := LoadAgentInstructions(); got != "" {
		t.Fatalf("expected empty instructions when no AGENTS.md exists, got %q", got)
	}
}

func TestLoadAgentInstructionsPrefersProjectOverUser(t *testing.T) {
	root := t.TempDir()
	home := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("project level"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(home, ".wave"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(home, ".wave", "AGENTS.md"), []byte("user level"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("HOME", home)
	chdir(t, root)

	got := LoadAgentInstructions()
	projectIdx := strings.Index(got, "project level")
	userIdx := strings.Index(got, "user level")
	if projectIdx == -1 || userIdx == -1 {
		t.Fatalf("expected both project and user instructions present, got %q", got)
	}
	if projectIdx > userIdx {
		t.Fatalf("expected project-level instructions to appear before user-level, got %q", got)
	}
}

func TestBuildSystemPromptWithoutExtras(t *testing.T) {
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	chdir(t, root)

	got := BuildSystemPrompt("claude-3", nil)
	if got != anthropicPrompt {
		t.Fatalf("expected the bare base prompt with no AGENTS.md or index, got %q", got)
	}
}

func TestBuildSystemPromptIncludesAgentInstructions(t *testing.T) {
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	if err := os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("be terse"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	chdir(t, root)

	got := BuildSystemPrompt("gpt-4o", nil)
	if !strings.Contains(got, "be terse") {
		t.Fatalf("expected AGENTS.md content folded into the system prompt, got %q", got)
	}
	if !strings.Contains(got, gptPrompt) {
		t.Fatal("expected the base gpt prompt to still be present")
	}
}
