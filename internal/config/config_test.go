package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
defaults:
  probe_timeout: 3s
  auth_timeout: 20s
  max_attempts: 5
  backoff: 1s
  cache_ttl: 10m
  concurrency: 16
hosts:
  web1:
    hostname: web1.internal
    user: deploy
    port: 2222
    identity_file: ~/.ssh/deploy_ed25519
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Defaults.ProbeTimeout.Duration; got != 3*time.Second {
		t.Errorf("probe_timeout = %s, want 3s", got)
	}
	if cfg.Defaults.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Defaults.MaxAttempts)
	}
	if got := cfg.Defaults.CacheTTL.Duration; got != 10*time.Minute {
		t.Errorf("cache_ttl = %s, want 10m", got)
	}
	hc, ok := cfg.Hosts["web1"]
	if !ok {
		t.Fatal("expected host web1")
	}
	if hc.Hostname != "web1.internal" || hc.User != "deploy" || hc.Port != 2222 {
		t.Errorf("unexpected host config: %+v", hc)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
defaults:
  max_attempts: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Defaults.MaxAttempts != 7 {
		t.Errorf("max_attempts = %d, want 7", cfg.Defaults.MaxAttempts)
	}
	if got := cfg.Defaults.ProbeTimeout.Duration; got != 5*time.Second {
		t.Errorf("probe_timeout = %s, want default 5s", got)
	}
	if got := cfg.Defaults.CacheTTL.Duration; got != 15*time.Minute {
		t.Errorf("cache_ttl = %s, want default 15m", got)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
defaults:
  probe_timeout: banana
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "banana") {
		t.Errorf("error %q should name the bad value", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_attempts", func(c *Config) { c.Defaults.MaxAttempts = 0 }},
		{"negative backoff", func(c *Config) { c.Defaults.Backoff.Duration = -time.Second }},
		{"zero concurrency", func(c *Config) { c.Defaults.Concurrency = 0 }},
		{"bad host port", func(c *Config) { c.Hosts["x"] = HostConfig{Port: 70000} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Defaults.MaxAttempts = 9
	cfg.Hosts["db"] = HostConfig{User: "postgres", Port: 2200}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Defaults.MaxAttempts != 9 {
		t.Errorf("max_attempts = %d, want 9", loaded.Defaults.MaxAttempts)
	}
	if loaded.Hosts["db"].User != "postgres" {
		t.Errorf("host user = %q, want postgres", loaded.Hosts["db"].User)
	}
}

func TestLoadDefaultMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Defaults.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want default 3", cfg.Defaults.MaxAttempts)
	}
}
