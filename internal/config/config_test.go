package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultd/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.Set("vault_root", t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.DebounceMS)
	assert.Equal(t, "Active", cfg.DefaultSection)
	assert.Equal(t, "ARCHIVE.md", cfg.ArchiveFile)
	assert.Equal(t, 200, cfg.ListLimit)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("vault_root", t.TempDir())
	v.Set("debounce_ms", 50)
	v.Set("exclude_patterns", []string{"scratch-*"})
	v.Set("log_level", "debug")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.DebounceMS)
	assert.Equal(t, []string{"scratch-*"}, cfg.ExcludePatterns)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateMissingRoot(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.CodeOf(err))
}

func TestValidateNonexistentRoot(t *testing.T) {
	cfg := Default()
	cfg.VaultRoot = "/definitely/not/a/vault"
	require.Error(t, cfg.Validate())
}

func TestValidateBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.VaultRoot = t.TempDir()
	cfg.LogLevel = "loud"
	require.Error(t, cfg.Validate())
}

func TestValidateResolvesAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.VaultRoot = dir
	require.NoError(t, cfg.Validate())
	assert.Equal(t, dir, cfg.VaultRoot)
}
