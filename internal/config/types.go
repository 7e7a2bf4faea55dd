// Package config loads Strata's layered configuration: built-in
// defaults, the strata.yaml project file, STRATA_ environment variables,
// and CLI flags, in ascending precedence. It also owns the mapping from
// the declarative target section to a warehouse adapter config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/millbrook-data/strata/pkg/adapter"
)

// Default configuration values.
const (
	DefaultGraphFile = "target/graph.json"
	DefaultStateFile = ".strata/history.db"
	DefaultEnv       = "dev"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=json
)

// Config holds all CLI configuration options.
type Config struct {
	// GraphPath is the compiled graph document produced by the external
	// compiler, JSON or YAML.
	GraphPath    string        `koanf:"graph"`
	StatePath    string        `koanf:"state_path"`
	Environment  string        `koanf:"environment"`
	Verbose      bool          `koanf:"verbose"`
	OutputFormat string        `koanf:"output"`
	Concurrency  int           `koanf:"concurrency"`
	RetryLimit   int           `koanf:"retry_limit"`
	BuildTimeout time.Duration `koanf:"build_timeout"`

	Target       *TargetConfig        `koanf:"target"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory all relative paths resolve against.
	// Set by the loader, never read from a file.
	ProjectRoot string `koanf:"-"`
}

// TargetConfig holds warehouse target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based warehouses (DuckDB)
	Path string `koanf:"path"`

	// Network warehouses
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB extensions)
	Params map[string]any `koanf:"params"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	StatePath string        `koanf:"state_path"`
	Target    *TargetConfig `koanf:"target"`
}

// AdapterConfig converts the target section into the adapter contract
// type consumed by the engine.
func (t *TargetConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(t.Type),
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// Validate checks if the target configuration is valid.
// The adapter registry is the single source of truth for which target
// types are available.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.GraphPath == "" {
		return fmt.Errorf("graph is required")
	}
	return nil
}

// MergeTarget merges two target configs, with override taking precedence.
func MergeTarget(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := &TargetConfig{
		Type:     base.Type,
		Path:     base.Path,
		Host:     base.Host,
		Port:     base.Port,
		Database: base.Database,
		User:     base.User,
		Password: base.Password,
		Schema:   base.Schema,
		Options:  make(map[string]string),
		Params:   make(map[string]any),
	}
	for k, v := range base.Options {
		merged.Options[k] = v
	}
	for k, v := range base.Params {
		merged.Params[k] = v
	}

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Path != "" {
		merged.Path = override.Path
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	for k, v := range override.Options {
		merged.Options[k] = v
	}
	for k, v := range override.Params {
		merged.Params[k] = v
	}

	return merged
}
