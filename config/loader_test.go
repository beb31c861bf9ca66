package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Retry.RetryDelay)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nlogging:\n  level: debug\n"), 0o600))

	cfg, err := Load(Options{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	t.Setenv("GOSSIP_LOGGING_LEVEL", "warn")

	cfg, err := Load(Options{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres-ish"
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsEmptyNodeURL(t *testing.T) {
	cfg := Default()
	cfg.Transport.NodeURL = ""
	assert.Error(t, Validate(&cfg))
}

func TestMissingFileIsNotAnError(t *testing.T) {
	_, err := Load(Options{FilePath: "/nonexistent/path/config.yaml"})
	assert.NoError(t, err)
}
