package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// clientName names the config and data directories under the XDG base dirs.
const clientName = "clerk"

// Config represents the top-level clerk.yaml configuration. It is built once
// at process start and passed into the core; nothing reads it ambiently.
type Config struct {
	Plaid PlaidConfig `yaml:"plaid"`
	Data  DataConfig  `yaml:"data"`
	Rules RulesConfig `yaml:"rules"`
}

// PlaidConfig holds upstream API credentials.
type PlaidConfig struct {
	ClientID    string `yaml:"client_id"`
	Secret      string `yaml:"secret"`
	Environment string `yaml:"environment"` // sandbox, development, or production
}

// DataConfig locates local state.
type DataConfig struct {
	Dir string `yaml:"dir"` // holds clerk.db and the sync log
}

// RulesConfig locates the categorization script.
type RulesConfig struct {
	File     string `yaml:"file,omitempty"`
	MaxSteps uint64 `yaml:"max_steps,omitempty"` // per-transaction budget, 0 = default
}

// DatabasePath returns the sqlite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.Dir, "clerk.db")
}

// Load reads a clerk.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config pointed at the user's XDG data directory.
func Default() (*Config, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	return &Config{
		Plaid: PlaidConfig{
			Environment: "sandbox",
		},
		Data: DataConfig{
			Dir: filepath.Join(dataDir, clientName),
		},
		Rules: RulesConfig{
			File: filepath.Join(cfgDir, clientName, "transform.rules"),
		},
	}, nil
}

// DefaultPath returns the default clerk.yaml location.
func DefaultPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(cfgDir, clientName, "clerk.yaml"), nil
}
