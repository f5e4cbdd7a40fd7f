package mcpclient

import "strings"

const toolPrefix = "mcp__"

// NamespacedName returns the deterministic ToolRegistry name for a tool
// exposed by an MCP server: "mcp__servername__toolname", per original §4.3.
func NamespacedName(serverName, toolName string) string {
	return toolPrefix + sanitizeName(serverName) + "__" + toolName
}

// ParseNamespacedName splits a namespaced tool name into its server and tool
// parts. Returns ok=false if name does not have the mcp__ prefix or is
// otherwise malformed.
func ParseNamespacedName(name string) (server, tool string, ok bool) {
	if !strings.HasPrefix(name, toolPrefix) {
		return "", "", false
	}
	rest := name[len(toolPrefix):]
	idx := strings.Index(rest, "__")
	if idx <= 0 {
		return "", "", false
	}
	server = rest[:idx]
	tool = rest[idx+2:]
	if tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// IsNamespacedName reports whether name belongs to an MCP server rather
// than a built-in tool.
func IsNamespacedName(name string) bool {
	return strings.HasPrefix(name, toolPrefix)
}

// sanitizeName lowercases name and replaces any character outside
// [a-z0-9-] with a hyphen, so server names can't smuggle "__" or other
// separators into the namespaced tool name.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
