package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Ingest.TimeoutSecs)
	assert.Equal(t, 3, cfg.Ingest.MaxRetries)
	assert.Equal(t, 1, cfg.Ingest.Concurrency)
	assert.Equal(t, 5, cfg.Ingest.RatePerSecond)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INGEST_STORE_DRIVER", "sqlite")
	t.Setenv("INGEST_LEDGER_APP_SECRET_TOKEN", "tok-1234")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "tok-1234", cfg.Ledger.AppSecretToken)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
