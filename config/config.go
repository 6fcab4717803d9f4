// Package config handles grafton configuration via YAML files with
// built-in defaults. All knobs are optional; a zero config file yields
// the same behavior as no config file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the embeddable database configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Traversal TraversalConfig `yaml:"traversal"`
}

// DatabaseConfig controls the SQLite connection.
type DatabaseConfig struct {
	// Path of the database file. ":memory:" opens an in-memory database.
	Path string `yaml:"path"`
	// BusyTimeoutMS is how long a writer waits on the database lock
	// before a busy error is surfaced.
	BusyTimeoutMS int `yaml:"busy_timeout_ms"`
}

// TraversalConfig sets default caps for traversal queries. Individual
// traversals may tighten them; they cannot be disabled.
type TraversalConfig struct {
	MaxResults int `yaml:"max_results"`
	MaxPaths   int `yaml:"max_paths"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          "grafton.db",
			BusyTimeoutMS: 5000,
		},
		Traversal: TraversalConfig{
			MaxResults: 200,
			MaxPaths:   100,
		},
	}
}

// LoadFromFile reads a YAML config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.BusyTimeoutMS < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}
	if c.Traversal.MaxResults < 0 {
		return fmt.Errorf("traversal.max_results must not be negative")
	}
	if c.Traversal.MaxPaths < 0 {
		return fmt.Errorf("traversal.max_paths must not be negative")
	}
	return nil
}
