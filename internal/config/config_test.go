package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugins.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[plugins]
declared = ["daily-notes", "word-count"]

[plugins.enabled]
word-count = false

[network]
allow = ["api.example.com", "*.openai.com"]
block = ["tracker.example.com"]

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Plugins.Declared) != 2 || cfg.Plugins.Declared[0] != "daily-notes" {
		t.Errorf("Declared = %v", cfg.Plugins.Declared)
	}
	if en, ok := cfg.Plugins.Enabled["word-count"]; !ok || en {
		t.Errorf("Enabled[word-count] = %v, %v; want false, true", en, ok)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if len(cfg.Network.Allow) != 2 || len(cfg.Network.Block) != 1 {
		t.Errorf("Network = %+v", cfg.Network)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Plugins.Enabled == nil {
		t.Error("Enabled map not initialized")
	}
	if len(cfg.Plugins.Declared) != 0 {
		t.Errorf("Declared = %v, want empty", cfg.Plugins.Declared)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeConfig(t, "[plugins\ndeclared =")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNetworkAllowed(t *testing.T) {
	tests := []struct {
		name string
		cfg  NetworkConfig
		host string
		want bool
	}{
		{"empty config allows all", NetworkConfig{}, "example.com", true},
		{"exact allow", NetworkConfig{Allow: []string{"api.example.com"}}, "api.example.com", true},
		{"not on allow list", NetworkConfig{Allow: []string{"api.example.com"}}, "other.com", false},
		{"wildcard allow subdomain", NetworkConfig{Allow: []string{"*.example.com"}}, "api.example.com", true},
		{"wildcard allow apex", NetworkConfig{Allow: []string{"*.example.com"}}, "example.com", true},
		{"wildcard no partial match", NetworkConfig{Allow: []string{"*.example.com"}}, "evilexample.com", false},
		{"block wins over allow", NetworkConfig{Allow: []string{"*.example.com"}, Block: []string{"bad.example.com"}}, "bad.example.com", false},
		{"block without allow list", NetworkConfig{Block: []string{"tracker.io"}}, "tracker.io", false},
		{"block spares others", NetworkConfig{Block: []string{"tracker.io"}}, "example.com", true},
		{"case insensitive", NetworkConfig{Allow: []string{"API.Example.COM"}}, "api.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Allowed(tt.host); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}
