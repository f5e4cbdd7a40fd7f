package tools

import "sync"

// Scratchpad holds the agent's current plan/notes, set via the todo_write
// tool. Content() returns the stored plan; nothing in this module splices
// it back into the prompt or the API payload.
type Scratchpad struct {
	mu      sync.RWMutex
	content string
}

func (s *Scratchpad) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

func (s *Scratchpad) set(content string) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
}

// newTodoWriteTool builds todo_write.
func newTodoWriteTool(pad *Scratchpad) Tool {
	return Tool{
		Spec: Spec{
			Name:        "todo_write",
			Description: "Write or update your working plan/scratchpad. The content replaces any previous plan; it is not re-inserted into your context later. Use this for tasks with 3+ steps; skip it for simple ones.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"content": {"type": "string", "description": "Current plan, todo list, or working notes. Replaces the previous content entirely."}
				},
				"required": ["content"]
			}`),
		},
		Run: func(_ Context, args map[string]any) Result {
			content := strArg(args, "content")
			if content == "" {
				return fail("content cannot be empty")
			}
			pad.set(content)
			return ok("plan updated")
		},
	}
}
