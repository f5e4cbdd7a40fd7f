package mcpclient

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// setupTestServer starts an in-memory MCP server exposing tools and wires
// the Client's transport factory to dial it directly, bypassing subprocess
// spawning so tests don't depend on an external MCP binary.
func setupTestServer(t *testing.T, serverName string, tools []*mcpsdk.Tool) (*Client, func()) {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "1.0"}, nil)
	for _, tool := range tools {
		server.AddTool(tool, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}}}, nil
		})
	}

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ctx := context.Background()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}

	origTransport := newTransport
	newTransport = func(sc ServerConfig) (mcpsdk.Transport, context.CancelFunc) {
		return clientTransport, func() {}
	}

	c := NewClient()
	c.mu.Lock()
	c.servers[serverName] = &serverConn{name: serverName, config: ServerConfig{Type: "stdio", Command: "unused"}, status: StatusDisconnected}
	c.mu.Unlock()

	return c, func() {
		c.Cleanup()
		serverSession.Close()
		newTransport = origTransport
	}
}

func TestConnectDiscoversNamespacedTools(t *testing.T) {
	tools := []*mcpsdk.Tool{
		{Name: "search", Description: "search things", InputSchema: map[string]any{"type": "object"}},
	}
	c, cleanup := setupTestServer(t, "github", tools)
	defer cleanup()

	if err := c.Connect(context.Background(), "github"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	got := c.Tools()
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	if got[0].Name != "mcp__github__search" {
		t.Fatalf("expected namespaced name mcp__github__search, got %q", got[0].Name)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	c, cleanup := setupTestServer(t, "svc", nil)
	defer cleanup()

	if err := c.Connect(context.Background(), "svc"); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := c.Connect(context.Background(), "svc"); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	statuses := c.ServerStatuses()
	if len(statuses) != 1 || statuses[0].Status != StatusConnected {
		t.Fatalf("expected exactly one connected server, got %+v", statuses)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, cleanup := setupTestServer(t, "svc", nil)
	defer cleanup()

	if err := c.Connect(context.Background(), "svc"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Disconnect("svc"); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := c.Disconnect("svc"); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	statuses := c.ServerStatuses()
	if len(statuses) != 1 || statuses[0].Status != StatusDisconnected {
		t.Fatalf("expected disconnected server, got %+v", statuses)
	}
}

func TestCallToolDispatchesToOwningServer(t *testing.T) {
	tools := []*mcpsdk.Tool{
		{Name: "search", Description: "search things", InputSchema: map[string]any{"type": "object"}},
	}
	c, cleanup := setupTestServer(t, "github", tools)
	defer cleanup()

	if err := c.Connect(context.Background(), "github"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	text, isErr := c.CallTool(context.Background(), "mcp__github__search", map[string]any{})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if text != "ok" {
		t.Fatalf("expected 'ok', got %q", text)
	}
}

func TestCallToolUnknownServer(t *testing.T) {
	c := NewClient()
	text, isErr := c.CallTool(context.Background(), "mcp__ghost__search", nil)
	if !isErr {
		t.Fatalf("expected error result for unknown server, got %q", text)
	}
}

func TestEventEmittedOnTransitions(t *testing.T) {
	c, cleanup := setupTestServer(t, "svc", nil)
	defer cleanup()

	var events []Event
	c.Subscribe(func(e Event) { events = append(events, e) })

	if err := c.Connect(context.Background(), "svc"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one McpServersChanged event")
	}
	last := events[len(events)-1]
	if len(last.Servers) != 1 || last.Servers[0].Status != StatusConnected {
		t.Fatalf("expected final event to show connected, got %+v", last.Servers)
	}
}
