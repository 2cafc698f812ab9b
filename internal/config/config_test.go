package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "qtour.db", cfg.Store.Path)
	assert.Equal(t, 30, cfg.Remote.TimeoutSecs)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("QTOUR_STORE_DRIVER", "postgres")
	t.Setenv("QTOUR_REMOTE_BASE_URL", "https://records.example.com")
	t.Setenv("QTOUR_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://records.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestInitLogger_RejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shout", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
