// Package config loads host-side plugin configuration from plugins.toml
// and watches it for live changes.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the host plugin configuration.
type Config struct {
	Plugins PluginsConfig `toml:"plugins"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
}

// PluginsConfig declares which plugins the host should run.
type PluginsConfig struct {
	// Declared lists plugin ids in load order.
	Declared []string `toml:"declared"`

	// Enabled overrides each plugin's enabled_by_default.
	Enabled map[string]bool `toml:"enabled"`
}

// NetworkConfig filters outbound plugin fetch targets. Block entries win
// over allow entries; an empty allow list permits every host not blocked.
type NetworkConfig struct {
	Allow []string `toml:"allow"`
	Block []string `toml:"block"`
}

// LoggingConfig selects the host log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Plugins: PluginsConfig{Enabled: make(map[string]bool)},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the configuration at path. A missing file is not an error;
// defaults apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Plugins.Enabled == nil {
		cfg.Plugins.Enabled = make(map[string]bool)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return cfg, nil
}

// Allowed reports whether a plugin may reach host. Entries match exactly
// or, with a "*." prefix, any subdomain.
func (n NetworkConfig) Allowed(host string) bool {
	host = strings.ToLower(host)

	for _, blocked := range n.Block {
		if hostMatches(host, blocked) {
			return false
		}
	}
	if len(n.Allow) == 0 {
		return true
	}
	for _, allowed := range n.Allow {
		if hostMatches(host, allowed) {
			return true
		}
	}
	return false
}

func hostMatches(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if rest, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == rest || strings.HasSuffix(host, "."+rest)
	}
	return host == pattern
}
