// Package config defines the vaultd configuration and its load order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"vaultd/internal/errors"
)

const (
	// ConfigDirName is the per-vault config directory.
	ConfigDirName = ".vaultd"
	// ConfigFileName is the config file inside ConfigDirName.
	ConfigFileName = "config.yaml"
	// EnvPrefix is the prefix for environment overrides (VAULTD_*).
	EnvPrefix = "VAULTD"
)

// Config is the full vaultd configuration.
type Config struct {
	// VaultRoot is the absolute path of the vault. Required.
	VaultRoot string `yaml:"vault_root" mapstructure:"vault_root"`

	// ExcludePatterns are doublestar globs for effort directories to skip,
	// in addition to the built-in exclusions.
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`

	// DebounceMS is the watcher settle window in milliseconds.
	DebounceMS int `yaml:"debounce_ms" mapstructure:"debounce_ms"`

	// PollIntervalMS is the poll period when the native watcher is
	// unavailable (network filesystems).
	PollIntervalMS int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`

	// ForcePoll forces polling mode even when fsnotify would work.
	ForcePoll bool `yaml:"force_poll" mapstructure:"force_poll"`

	// DefaultSection is where new tasks land when no section is given.
	DefaultSection string `yaml:"default_section" mapstructure:"default_section"`

	// ArchiveFile is the archive document name, relative to each effort.
	ArchiveFile string `yaml:"archive_file" mapstructure:"archive_file"`

	// ListLimit caps task_list results when the caller sets no limit.
	ListLimit int `yaml:"list_limit" mapstructure:"list_limit"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DebounceMS:     300,
		PollIntervalMS: 2000,
		DefaultSection: "Active",
		ArchiveFile:    "ARCHIVE.md",
		ListLimit:      200,
		LogLevel:       "info",
	}
}

// Load hydrates a Config from viper, which the CLI has already pointed at
// the vault's config file and the VAULTD_* environment. Values missing from
// viper keep their defaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.CodeValidationFailed, "parse configuration", err).
			WithFix("check " + filepath.Join(ConfigDirName, ConfigFileName) + " syntax")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and resolves VaultRoot to an absolute path.
func (c *Config) Validate() error {
	if c.VaultRoot == "" {
		return errors.New(errors.CodeValidationFailed, "no vault root configured").
			WithFix("set vault_root in config, VAULTD_VAULT_ROOT, or pass --vault")
	}
	abs, err := filepath.Abs(c.VaultRoot)
	if err != nil {
		return errors.Wrap(errors.CodeValidationFailed, "resolve vault root", err)
	}
	c.VaultRoot = abs

	info, err := os.Stat(c.VaultRoot)
	if err != nil {
		return errors.Wrap(errors.CodeValidationFailed,
			fmt.Sprintf("vault root %s not accessible", c.VaultRoot), err).
			WithFix("create the directory or point vault_root elsewhere")
	}
	if !info.IsDir() {
		return errors.New(errors.CodeValidationFailed,
			fmt.Sprintf("vault root %s is not a directory", c.VaultRoot))
	}

	if c.DebounceMS <= 0 {
		return errors.New(errors.CodeValidationFailed, "debounce_ms must be positive")
	}
	if c.PollIntervalMS <= 0 {
		return errors.New(errors.CodeValidationFailed, "poll_interval_ms must be positive")
	}
	if c.ListLimit <= 0 {
		return errors.New(errors.CodeValidationFailed, "list_limit must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New(errors.CodeValidationFailed,
			fmt.Sprintf("unknown log_level %q", c.LogLevel)).
			WithFix("use debug, info, warn, or error")
	}
	return nil
}

// Debounce returns DebounceMS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ConfigDir returns the vault's config directory.
func (c *Config) ConfigDir() string {
	return filepath.Join(c.VaultRoot, ConfigDirName)
}

// StatePath returns the persisted focus-state file.
func (c *Config) StatePath() string {
	return filepath.Join(c.ConfigDir(), "state.json")
}
