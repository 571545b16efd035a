package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Empty(t, cfg.RulesDir)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("RISKWATCH_DATA_DIR", "/tmp/test-riskwatch")
	t.Setenv("RISKWATCH_CACHE_MAX_ITEMS", "500")
	t.Setenv("RISKWATCH_CACHE_TTL", "12h")
	t.Setenv("RISKWATCH_RULES_DIR", "/etc/riskwatch/rules")
	t.Setenv("RISKWATCH_SWEEP_INTERVAL", "30s")
	t.Setenv("RISKWATCH_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-riskwatch", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "/etc/riskwatch/rules", cfg.RulesDir)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_IgnoresBadValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("RISKWATCH_CACHE_MAX_ITEMS", "-4")
	t.Setenv("RISKWATCH_SWEEP_INTERVAL", "soon")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLiteConfig_DBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.riskwatch"}

	assert.Equal(t, "/home/user/.riskwatch/riskwatch.db", cfg.DBPath())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "riskwatch")}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"RISKWATCH_DATA_DIR",
		"RISKWATCH_CACHE_MAX_ITEMS",
		"RISKWATCH_CACHE_TTL",
		"RISKWATCH_RULES_DIR",
		"RISKWATCH_SWEEP_INTERVAL",
		"RISKWATCH_LOG_LEVEL",
		"RISKWATCH_LOG_FORMAT",
	}
	for _, v := range vars {
		// t.Setenv restores the previous value when the test ends.
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
