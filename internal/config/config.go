// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Defaults for CoreConfig fields not set in the file, per original spec §9.
const (
	DefaultTokenLimit              = 100000
	DefaultSnapshotThrottleSeconds = 30
	DefaultCompressionWindow       = 7
	DefaultInputHistoryCap         = 100
	DefaultShellSignalExitCode     = 130
)

// CoreConfig packages the process-global workdir, env-var token limit, and
// env-var debounce the source kept implicit into one explicit struct, per
// the design note on re-architecting process-global state.
type CoreConfig struct {
	Workdir                 string                    `toml:"-"`
	SessionDir              string                    `toml:"session_dir"`
	TokenLimit              int                       `toml:"token_limit"`
	SnapshotThrottleSeconds int                       `toml:"snapshot_throttle_seconds"`
	CompressionWindow       int                       `toml:"compression_window"`
	InputHistoryCap         int                       `toml:"input_history_cap"`
	ShellSignalExitCode     int                       `toml:"shell_signal_exit_code"`
	DefaultProvider         string                    `toml:"default_provider"`
	Providers               map[string]ProviderConfig `toml:"providers"`
	Cache                   CacheConfig               `toml:"cache"`
}

// CacheConfig holds web cache settings.
type CacheConfig struct {
	TTLHours int `toml:"ttl_hours"`
}

// CacheTTLOrDefault returns the configured TTL or 24 hours if unset.
func (c CacheConfig) CacheTTLOrDefault() int {
	if c.TTLHours <= 0 {
		return 24
	}
	return c.TTLHours
}

// ProviderConfig holds LLM provider settings. The core never talks to a
// provider directly — it only validates and forwards this shape to the
// Facade's caller, which owns the concrete provider.Provider.
type ProviderConfig struct {
	Endpoint    string  `toml:"endpoint"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
}

func withDefaults(cfg *CoreConfig) {
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}
	if cfg.SnapshotThrottleSeconds <= 0 {
		cfg.SnapshotThrottleSeconds = DefaultSnapshotThrottleSeconds
	}
	if cfg.CompressionWindow <= 0 {
		cfg.CompressionWindow = DefaultCompressionWindow
	}
	if cfg.InputHistoryCap <= 0 {
		cfg.InputHistoryCap = DefaultInputHistoryCap
	}
	if cfg.ShellSignalExitCode <= 0 {
		cfg.ShellSignalExitCode = DefaultShellSignalExitCode
	}
}

// Load reads configuration from a TOML file and applies environment variable
// overrides. A missing file is not an error — the core falls back to
// defaults, since it is meant to be embedded rather than run standalone.
func Load(path string) (*CoreConfig, error) {
	cfg := &CoreConfig{
		Providers: make(map[string]ProviderConfig),
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	withDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *CoreConfig) Validate() error {
	var errs []error

	for name, providerCfg := range c.Providers {
		errs = append(errs, validateProviderConfig(name, providerCfg)...)
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider=%q does not exist in providers", c.DefaultProvider))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateProviderConfig(name string, cfg ProviderConfig) []error {
	var errs []error
	if cfg.Endpoint != "" {
		if err := validateEndpoint(cfg.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("providers.%s.endpoint=%q is invalid: %v", name, cfg.Endpoint, err))
		}
	}
	if cfg.Temperature < 0.0 || cfg.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("providers.%s.temperature=%v must be between 0.0 and 2.0", name, cfg.Temperature))
	}
	return errs
}

func validateEndpoint(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("missing scheme or host")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration, kept as a thin outer layer outside the core per the
// design note in original §9.
func applyEnvOverrides(cfg *CoreConfig) {
	if v := os.Getenv("WAVE_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TokenLimit = n
		}
	}
	if v := os.Getenv("WAVE_SNAPSHOT_THROTTLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SnapshotThrottleSeconds = n
		}
	}
	if v := os.Getenv("WAVE_SESSION_DIR"); v != "" {
		cfg.SessionDir = v
	}
}

// DataDir returns the path to the agent's data directory (~/.wave).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".wave"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultSessionDir returns <home>/.wave/sessions, the directory resolution
// rule from original §4.2 when no explicit sessionDir is configured.
func DefaultSessionDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}
