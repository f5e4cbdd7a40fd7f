package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenLimit != DefaultTokenLimit {
		t.Fatalf("expected default token limit, got %d", cfg.TokenLimit)
	}
	if cfg.CompressionWindow != DefaultCompressionWindow {
		t.Fatalf("expected default compression window, got %d", cfg.CompressionWindow)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
token_limit = 5000
default_provider = "anthropic"

[providers.anthropic]
model = "claude"
endpoint = "https://api.anthropic.com"
temperature = 0.5
`
	os.WriteFile(path, []byte(content), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenLimit != 5000 {
		t.Fatalf("expected token_limit 5000, got %d", cfg.TokenLimit)
	}
	pcfg, ok := cfg.Providers["anthropic"]
	if !ok {
		t.Fatal("expected anthropic provider to be present")
	}
	if pcfg.Model != "claude" {
		t.Fatalf("expected model 'claude', got %q", pcfg.Model)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("not = [valid"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed TOML")
	}
}

func TestValidateRejectsUnknownDefaultProvider(t *testing.T) {
	cfg := &CoreConfig{
		DefaultProvider: "missing",
		Providers:       map[string]ProviderConfig{},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when default_provider is not in providers")
	}
}

func TestValidateRejectsBadEndpoint(t *testing.T) {
	cfg := &CoreConfig{
		Providers: map[string]ProviderConfig{
			"p": {Endpoint: "not a url"},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an invalid endpoint")
	}
}

func TestValidateRejectsOutOfRangeTemperature(t *testing.T) {
	cfg := &CoreConfig{
		Providers: map[string]ProviderConfig{
			"p": {Temperature: 3.0},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for temperature out of [0, 2] range")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &CoreConfig{
		DefaultProvider: "p",
		Providers: map[string]ProviderConfig{
			"p": {Endpoint: "https://example.com", Temperature: 1.0},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a valid config to pass, got %v", err)
	}
}

func TestApplyEnvOverridesTokenLimit(t *testing.T) {
	t.Setenv("WAVE_TOKEN_LIMIT", "42000")
	t.Setenv("WAVE_SNAPSHOT_THROTTLE_SECONDS", "")
	t.Setenv("WAVE_SESSION_DIR", "")

	cfg := &CoreConfig{}
	applyEnvOverrides(cfg)
	if cfg.TokenLimit != 42000 {
		t.Fatalf("expected env override to set token limit, got %d", cfg.TokenLimit)
	}
}

func TestCacheTTLOrDefault(t *testing.T) {
	if got := (CacheConfig{}).CacheTTLOrDefault(); got != 24 {
		t.Fatalf("expected default of 24, got %d", got)
	}
	if got := (CacheConfig{TTLHours: 5}).CacheTTLOrDefault(); got != 5 {
		t.Fatalf("expected configured value 5, got %d", got)
	}
}

func TestDefaultSessionDirUnderDataDir(t *testing.T) {
	dataDir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	sessionDir, err := DefaultSessionDir()
	if err != nil {
		t.Fatalf("DefaultSessionDir: %v", err)
	}
	if sessionDir != filepath.Join(dataDir, "sessions") {
		t.Fatalf("expected sessions dir under data dir, got %q", sessionDir)
	}
}
