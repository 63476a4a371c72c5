package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level sshdoctor configuration.
type Config struct {
	Defaults Defaults              `yaml:"defaults"`
	Hosts    map[string]HostConfig `yaml:"hosts,omitempty"`
}

// HostConfig holds per-host overrides applied during target resolution.
type HostConfig struct {
	Hostname     string `yaml:"hostname,omitempty"`
	User         string `yaml:"user,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	IdentityFile string `yaml:"identity_file,omitempty"`
}

// Defaults holds default settings for probing and retrying.
type Defaults struct {
	ProbeTimeout Duration `yaml:"probe_timeout"` // DNS and TCP sub-steps
	AuthTimeout  Duration `yaml:"auth_timeout"`  // full authentication attempts
	MaxAttempts  int      `yaml:"max_attempts"`  // outer retry budget
	Backoff      Duration `yaml:"backoff"`       // pause between non-interactive retries
	CacheTTL     Duration `yaml:"cache_ttl"`     // session credential cache entry lifetime
	Concurrency  int      `yaml:"concurrency"`   // reachability sweep parallelism
}

// Duration wraps time.Duration to support YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			ProbeTimeout: Duration{5 * time.Second},
			AuthTimeout:  Duration{30 * time.Second},
			MaxAttempts:  3,
			Backoff:      Duration{2 * time.Second},
			CacheTTL:     Duration{15 * time.Minute},
			Concurrency:  64,
		},
		Hosts: make(map[string]HostConfig),
	}
}

// DefaultConfigPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "sshdoctor", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sshdoctor", "config.yaml")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config from the default path.
// If the file does not exist, it returns the default config.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save writes the config to the given file path as YAML.
// It creates parent directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	if c.Defaults.ProbeTimeout.Duration < 0 {
		return fmt.Errorf("probe_timeout must be non-negative, got %s", c.Defaults.ProbeTimeout)
	}
	if c.Defaults.AuthTimeout.Duration < 0 {
		return fmt.Errorf("auth_timeout must be non-negative, got %s", c.Defaults.AuthTimeout)
	}
	if c.Defaults.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Defaults.MaxAttempts)
	}
	if c.Defaults.Backoff.Duration < 0 {
		return fmt.Errorf("backoff must be non-negative, got %s", c.Defaults.Backoff)
	}
	if c.Defaults.CacheTTL.Duration < 0 {
		return fmt.Errorf("cache_ttl must be non-negative, got %s", c.Defaults.CacheTTL)
	}
	if c.Defaults.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Defaults.Concurrency)
	}

	for name, hc := range c.Hosts {
		if hc.Port < 0 || hc.Port > 65535 {
			return fmt.Errorf("host %q has invalid port %d", name, hc.Port)
		}
	}

	return nil
}
