package subagent

import (
	"context"
	"testing"

	"github.com/xonecas/agentcore/internal/tools"
)

func TestNewToolSpec(t *testing.T) {
	registry := &fakeRegistry{specs: []tools.Spec{{Name: "Bash"}}}
	tool := NewTool(&fakeProvider{content: "done"}, registry)

	if tool.Spec.Name != "SubAgent" {
		t.Fatalf("expected tool name SubAgent, got %q", tool.Spec.Name)
	}
	if len(tool.Spec.JSONSchema) == 0 {
		t.Fatal("expected a non-empty JSON schema")
	}
}

func TestNewToolRunRejectsMissingPrompt(t *testing.T) {
	registry := &fakeRegistry{specs: []tools.Spec{{Name: "Bash"}}}
	tool := NewTool(&fakeProvider{content: "done"}, registry)

	result := tool.Run(tools.Context{Ctx: context.Background(), Workdir: "/tmp"}, map[string]any{})
	if result.Success {
		t.Fatal("expected failure when prompt is missing")
	}
}

func TestNewToolRunDispatchesPrompt(t *testing.T) {
	registry := &fakeRegistry{specs: []tools.Spec{{Name: "Bash"}}}
	tool := NewTool(&fakeProvider{content: "all done"}, registry)

	result := tool.Run(tools.Context{Ctx: context.Background(), Workdir: "/tmp"}, map[string]any{
		"prompt": "summarize the repo",
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
}
