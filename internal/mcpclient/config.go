package mcpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ServerConfig describes how to reach a single MCP server, per original
// §6.3's ".mcp.json" schema.
type ServerConfig struct {
	Type    string            `json:"type,omitempty"` // "stdio" (default) or "http"
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// FileConfig is the on-disk ".mcp.json" document shape.
type FileConfig struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// userConfigDir returns the user-scope MCP config directory, ~/.wave.
// Overridable in tests.
var userConfigDir = defaultUserConfigDir

func defaultUserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".wave")
}

// lookupEnvFunc resolves environment variables referenced in config values.
// Overridable in tests.
var lookupEnvFunc = os.LookupEnv

// LoadConfig reads and merges MCP server definitions from the user-level
// config (~/.wave/mcp.json) and the project-local config
// (<workdir>/.mcp.json). Project entries override user entries with the
// same server name. Missing files are not an error — an absent config
// simply contributes no servers.
func LoadConfig(workdir string) (map[string]ServerConfig, error) {
	merged := map[string]ServerConfig{}

	if dir := userConfigDir(); dir != "" {
		if cfg, err := loadConfigFile(filepath.Join(dir, "mcp.json")); err == nil {
			for name, sc := range cfg.MCPServers {
				merged[name] = sc
			}
		}
	}

	if workdir != "" {
		if cfg, err := loadConfigFile(filepath.Join(workdir, ".mcp.json")); err == nil {
			for name, sc := range cfg.MCPServers {
				merged[name] = sc
			}
		}
	}

	for name, sc := range merged {
		sc.Command = expandEnvVars(sc.Command)
		sc.URL = expandEnvVars(sc.URL)
		for i, arg := range sc.Args {
			sc.Args[i] = expandEnvVars(arg)
		}
		for k, v := range sc.Env {
			sc.Env[k] = expandEnvVars(v)
		}
		if err := validateServerConfig(name, sc); err != nil {
			return nil, err
		}
		merged[name] = sc
	}

	return merged, nil
}

func loadConfigFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerConfig{}
	}
	return cfg, nil
}

// validateServerConfig checks only the presence of required fields, per
// original §6.3 ("the core does not validate beyond presence of required
// fields").
func validateServerConfig(name string, sc ServerConfig) error {
	switch sc.Type {
	case "stdio", "":
		if sc.Command == "" {
			return fmt.Errorf("mcp server %q: stdio type requires 'command'", name)
		}
	case "http":
		if sc.URL == "" {
			return fmt.Errorf("mcp server %q: http type requires 'url'", name)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown type %q", name, sc.Type)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with values
// from the process environment.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		if len(groups) >= 3 {
			defaultVal = groups[2]
		}
		if val, ok := lookupEnvFunc(varName); ok {
			return val
		}
		return strings.TrimSpace(defaultVal)
	})
}
