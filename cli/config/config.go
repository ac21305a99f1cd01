package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvVaultPassword is the environment fallback for the vault password.
// Using it is a configured choice, not a default; interactive unlock is
// preferred.
const EnvVaultPassword = "VCOLLECT_VAULT_PASSWORD"

// Execution defaults applied when a job descriptor leaves them unset.
const (
	DefaultMaxWorkers   = 12
	DefaultTimeout      = 60 * time.Second
	DefaultCommandPause = 1 * time.Second
)

// Config represents a vcollect.yaml configuration file.
// All values are optional; CLI flags always override config values.
type Config struct {
	// DataDir is the root for stores and captures. Defaults to
	// ~/.vcollect.
	DataDir string `yaml:"data_dir"`

	// Store paths; each defaults to a well-known file under DataDir.
	InventoryDB string `yaml:"inventory_db"`
	VaultDB     string `yaml:"vault_db"`
	TemplatesDB string `yaml:"templates_db"`
	HistoryDB   string `yaml:"history_db"`

	// CollectionRoot is where capture files land; defaults to
	// <DataDir>/collections.
	CollectionRoot string `yaml:"collection_root"`

	// BatchDir holds batch descriptor YAML files; defaults to
	// <DataDir>/batches.
	BatchDir string `yaml:"batch_dir"`

	Execution ExecutionDefaults `yaml:"execution"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
}

// ExecutionDefaults provide fallback execution policy values for jobs
// that omit them.
type ExecutionDefaults struct {
	MaxWorkers   int      `yaml:"max_workers"`
	Timeout      Duration `yaml:"timeout"`
	CommandPause Duration `yaml:"command_pause"`
}

// DiscoveryConfig tunes the credential discovery engine.
type DiscoveryConfig struct {
	// MaxInFlight bounds concurrent probe sessions.
	MaxInFlight int `yaml:"max_in_flight"`

	// SkipRecentlyTested skips devices whose last credential test is
	// newer than this window. Zero disables skipping.
	SkipRecentlyTested Duration `yaml:"skip_recently_tested"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultDataDir returns ~/.vcollect, falling back to the current
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vcollect"
	}
	return filepath.Join(home, ".vcollect")
}

// ApplyDefaults fills unset fields with their conventional values.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.InventoryDB == "" {
		c.InventoryDB = filepath.Join(c.DataDir, "inventory.db")
	}
	if c.VaultDB == "" {
		c.VaultDB = filepath.Join(c.DataDir, "vault.db")
	}
	if c.TemplatesDB == "" {
		c.TemplatesDB = filepath.Join(c.DataDir, "templates.db")
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(c.DataDir, "history.db")
	}
	if c.CollectionRoot == "" {
		c.CollectionRoot = filepath.Join(c.DataDir, "collections")
	}
	if c.BatchDir == "" {
		c.BatchDir = filepath.Join(c.DataDir, "batches")
	}
	if c.Execution.MaxWorkers == 0 {
		c.Execution.MaxWorkers = DefaultMaxWorkers
	}
	if c.Execution.Timeout.Duration == 0 {
		c.Execution.Timeout.Duration = DefaultTimeout
	}
	if c.Execution.CommandPause.Duration == 0 {
		c.Execution.CommandPause.Duration = DefaultCommandPause
	}
	if c.Discovery.MaxInFlight == 0 {
		c.Discovery.MaxInFlight = 4
	}
	if c.Discovery.SkipRecentlyTested.Duration == 0 {
		c.Discovery.SkipRecentlyTested.Duration = 24 * time.Hour
	}
}
