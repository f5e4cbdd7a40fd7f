// Package mcpclient implements McpClient: a multi-server, named,
// independently-stateful set of MCP connections, exposed to the ToolRegistry
// as a dynamic set of namespaced tools.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// connectTimeout bounds a single server's connect+list-tools round trip.
var connectTimeout = 30 * time.Second

// callTimeout bounds a single tool call.
var callTimeout = 30 * time.Second

type serverConn struct {
	name    string
	config  ServerConfig
	session *mcpsdk.ClientSession
	tools   []*mcpsdk.Tool
	kill    context.CancelFunc
	status  Status
	lastErr error
}

// Client manages MCP server connections and tool discovery/dispatch, per
// original §4.5.
type Client struct {
	mu       sync.RWMutex
	servers  map[string]*serverConn
	handlers []Handler
}

// NewClient constructs an empty Client. Call Initialize to load
// configuration and optionally auto-connect.
func NewClient() *Client {
	return &Client{servers: make(map[string]*serverConn)}
}

// Subscribe registers h to receive McpServersChanged events. Handlers fire
// synchronously in registration order.
func (c *Client) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *Client) emitLocked() {
	servers := c.serverStatesLocked()
	for _, h := range c.handlers {
		h(Event{Servers: servers})
	}
}

func (c *Client) serverStatesLocked() []ServerState {
	states := make([]ServerState, 0, len(c.servers))
	for _, conn := range c.servers {
		s := ServerState{Name: conn.name, Status: conn.status, ToolCount: len(conn.tools)}
		if conn.lastErr != nil {
			s.LastError = conn.lastErr.Error()
		}
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// Initialize loads server definitions from the project and user config
// files and, if autoConnect, connects each one. Per-server connect failures
// do not abort initialization — the server is left disconnected with
// lastErr populated and the rest proceed.
func (c *Client) Initialize(ctx context.Context, workdir string, autoConnect bool) error {
	cfg, err := LoadConfig(workdir)
	if err != nil {
		return fmt.Errorf("loading mcp config: %w", err)
	}

	names := make([]string, 0, len(cfg))
	c.mu.Lock()
	for name, sc := range cfg {
		c.servers[name] = &serverConn{name: name, config: sc, status: StatusDisconnected}
		names = append(names, name)
	}
	c.emitLocked()
	c.mu.Unlock()

	if !autoConnect {
		return nil
	}
	sort.Strings(names)
	for _, name := range names {
		_ = c.Connect(ctx, name)
	}
	return nil
}

// Connect transitions a known server disconnected -> connecting -> connected
// (or back to disconnected with lastErr on failure). Idempotent: connecting
// an already-connected server is a no-op beyond re-emitting the event.
func (c *Client) Connect(ctx context.Context, name string) error {
	c.mu.Lock()
	conn, ok := c.servers[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("mcp server %q is not configured", name)
	}
	if conn.status == StatusConnected {
		c.emitLocked()
		c.mu.Unlock()
		return nil
	}
	conn.status = StatusConnecting
	conn.lastErr = nil
	c.emitLocked()
	c.mu.Unlock()

	session, tools, kill, err := connectServer(ctx, conn.config)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		conn.status = StatusDisconnected
		conn.lastErr = err
		c.emitLocked()
		return err
	}
	conn.session = session
	conn.tools = tools
	conn.kill = kill
	conn.status = StatusConnected
	c.emitLocked()
	return nil
}

// newTransport is swapped out in tests.
var newTransport = defaultNewTransport

func defaultNewTransport(sc ServerConfig) (mcpsdk.Transport, context.CancelFunc) {
	if sc.Type == "http" {
		return &mcpsdk.StreamableClientTransport{Endpoint: sc.URL}, func() {}
	}
	cmd := exec.Command(sc.Command, sc.Args...)
	if len(sc.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range sc.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return &mcpsdk.CommandTransport{Command: cmd}, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

func connectServer(ctx context.Context, sc ServerConfig) (*mcpsdk.ClientSession, []*mcpsdk.Tool, context.CancelFunc, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentcore", Version: "1.0"}, nil)
	transport, kill := newTransport(sc)

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	session, err := client.Connect(connCtx, transport, nil)
	if err != nil {
		kill()
		return nil, nil, nil, fmt.Errorf("connecting: %w", err)
	}

	listCtx, listCancel := context.WithTimeout(ctx, connectTimeout)
	defer listCancel()
	result, err := session.ListTools(listCtx, nil)
	if err != nil {
		kill()
		return nil, nil, nil, fmt.Errorf("listing tools: %w", err)
	}
	return session, result.Tools, kill, nil
}

// Disconnect transitions a server to disconnected, closing its session and
// releasing its process/transport. Idempotent — disconnecting an already
// disconnected server still emits the event, per original §4.5.
func (c *Client) Disconnect(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.servers[name]
	if !ok {
		return fmt.Errorf("mcp server %q is not configured", name)
	}
	disconnectLocked(conn)
	c.emitLocked()
	return nil
}

func disconnectLocked(conn *serverConn) {
	if conn.session != nil {
		_ = conn.session.Close()
		conn.session = nil
	}
	if conn.kill != nil {
		conn.kill()
		conn.kill = nil
	}
	conn.tools = nil
	conn.status = StatusDisconnected
}

// Reconnect disconnects then connects a server. Idempotent with respect to
// the end state: calling it on an already-disconnected server just connects.
func (c *Client) Reconnect(ctx context.Context, name string) error {
	_ = c.Disconnect(name)
	return c.Connect(ctx, name)
}

// Cleanup disconnects every server and releases all resources. Called from
// the Facade's destroy().
func (c *Client) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.servers {
		disconnectLocked(conn)
	}
	c.emitLocked()
}

// Tools returns every tool exposed by currently-connected servers, with
// ToolRegistry-facing namespaced names. Recomputed on each call, per
// original §4.3 ("dynamic — the set is recomputed at every list() call").
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Tool
	for _, conn := range c.servers {
		if conn.status != StatusConnected {
			continue
		}
		for _, t := range conn.tools {
			out = append(out, toTool(conn.name, t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func toTool(serverName string, t *mcpsdk.Tool) Tool {
	schema, _ := json.Marshal(t.InputSchema)
	return Tool{
		Name:        NamespacedName(serverName, t.Name),
		ServerName:  serverName,
		ToolName:    t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// ServerStatuses returns the current status snapshot, for the Facade's MCP
// management surface.
func (c *Client) ServerStatuses() []ServerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverStatesLocked()
}

// CallTool dispatches a namespaced tool call to its owning server. Returns
// (resultText, isError); it never panics or returns a Go error for a
// reachable-but-failing server, matching the ToolRegistry's
// never-throws contract (original §4.3/§7).
func (c *Client) CallTool(ctx context.Context, namespacedName string, args map[string]any) (string, bool) {
	serverName, toolName, ok := ParseNamespacedName(namespacedName)
	if !ok {
		return fmt.Sprintf("not an mcp tool name: %q", namespacedName), true
	}

	c.mu.RLock()
	conn, exists := c.servers[serverName]
	if !exists {
		// Namespaced names carry the sanitized server name; match it back
		// to the configured name.
		for name, sc := range c.servers {
			if sanitizeName(name) == serverName {
				conn, exists = sc, true
				break
			}
		}
	}
	c.mu.RUnlock()
	if !exists {
		return fmt.Sprintf("mcp server %q not found", serverName), true
	}
	if conn.status != StatusConnected || conn.session == nil {
		msg := fmt.Sprintf("mcp server %q is unavailable", serverName)
		if conn.lastErr != nil {
			msg += ": " + conn.lastErr.Error()
		}
		return msg, true
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := conn.session.CallTool(callCtx, &mcpsdk.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "mcp tool call timed out", true
		}
		return fmt.Sprintf("mcp tool call failed: %v", err), true
	}
	if result == nil {
		return "mcp server returned empty response", true
	}

	text := extractText(result.Content)
	if text == "" {
		return "mcp server returned empty response", true
	}
	return text, result.IsError
}

func extractText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
