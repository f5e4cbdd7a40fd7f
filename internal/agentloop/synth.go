package agentloop

import (
	"encoding/json"
	"strings"

	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
)

// BuildPayload derives the chat-completion request messages from a
// MessageStore snapshot, per original §6.1. subAgent-role messages are
// UI-only groupings and are skipped entirely; Diff/CommandOutput/Error/
// Memory blocks never cross into the API.
//
// provider.Message has no multipart/image field (kept exactly as the
// teacher's boundary type, since a concrete vision-capable client is out
// of scope here) so an image part is rendered as a short text placeholder
// instead of being dropped silently.
func BuildPayload(messages []*messagestore.Message) []provider.Message {
	start := latestCompressIndex(messages)

	var out []provider.Message
	for _, m := range messages[start:] {
		switch m.Role {
		case messagestore.RoleSubAgent:
			continue
		case messagestore.RoleUser:
			out = append(out, synthUserMessage(m))
		case messagestore.RoleAssistant:
			out = append(out, synthAssistantMessage(m)...)
		}
	}
	return out
}

// latestCompressIndex returns the index of the most recent message
// carrying a Compress block, or 0 if none exists. Everything before that
// index is suppressed from the payload, per the Compress-block synthesis
// rule; appendCompressBlock never removes messages, so this is a pure
// index computed fresh on every build.
func latestCompressIndex(messages []*messagestore.Message) int {
	latest := 0
	for i, m := range messages {
		if m.Role != messagestore.RoleUser {
			continue
		}
		for _, b := range m.Blocks {
			if b.Kind == messagestore.BlockCompress {
				latest = i
			}
		}
	}
	return latest
}

func synthUserMessage(m *messagestore.Message) provider.Message {
	var parts []string
	for _, b := range m.Blocks {
		switch b.Kind {
		case messagestore.BlockText:
			if b.Content != "" {
				parts = append(parts, b.Content)
			}
			for range b.Images {
				parts = append(parts, "[image attached]")
			}
		case messagestore.BlockCompress:
			parts = append(parts, "<compressed-history>\n"+b.Content+"\n</compressed-history>")
		}
	}
	return provider.Message{Role: "user", Content: strings.Join(parts, "\n\n")}
}

// synthAssistantMessage returns the assistant message followed by one
// tool-role message per completed Tool block, per original §6.1's "emit
// the tool-role message immediately after its enclosing assistant
// Message" rule.
func synthAssistantMessage(m *messagestore.Message) []provider.Message {
	var answer strings.Builder
	var toolCalls []provider.ToolCall
	var toolResults []provider.Message

	for _, b := range m.Blocks {
		switch b.Kind {
		case messagestore.BlockAnswer:
			answer.WriteString(b.Content)
		case messagestore.BlockTool:
			args := b.Args
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, provider.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(args),
			})
			if !b.IsRunning {
				content := b.Result
				if content == "" && b.Error != "" {
					content = "Error: " + b.Error
				}
				toolResults = append(toolResults, provider.Message{
					Role:         "tool",
					Content:      content,
					ToolCallID:   b.ID,
					FunctionName: b.Name,
				})
			}
		}
	}

	out := []provider.Message{{Role: "assistant", Content: answer.String(), ToolCalls: toolCalls}}
	return append(out, toolResults...)
}
