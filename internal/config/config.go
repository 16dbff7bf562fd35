package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (PREDICTD_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: PREDICTD_BIND -> bind, etc.
	if err := k.Load(env.Provider("PREDICTD_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PREDICTD_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validKVBackends is the set of recognized Score Store backends.
var validKVBackends = map[KVBackend]bool{
	KVMemory: true,
	KVSQLite: true,
}

// Validate checks that the configuration contains valid values. An
// unreadable code root is a Fatal startup error; the rest of validation
// fails the same way, since config errors are never recoverable mid-run.
func (c *Config) Validate() error {
	if c.CodeRoot == "" {
		return fmt.Errorf("code_root is required")
	}
	info, err := os.Stat(c.CodeRoot)
	if err != nil {
		return fmt.Errorf("code_root %q: %w", c.CodeRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("code_root %q is not a directory", c.CodeRoot)
	}

	if c.Bind == "" {
		return fmt.Errorf("bind address is required")
	}

	if !validKVBackends[c.KVBackend] {
		return fmt.Errorf("invalid kv_backend %q: must be one of memory, sqlite", c.KVBackend)
	}

	if c.RecencyHalfLifeSeconds <= 0 {
		return fmt.Errorf("recency_half_life_seconds must be positive")
	}

	if c.EvaluationWindowSeconds <= 0 {
		return fmt.Errorf("evaluation_window_seconds must be positive")
	}

	if c.SavingsSecondsPerToken < 0 {
		return fmt.Errorf("savings_seconds_per_token must be non-negative")
	}

	return nil
}
