package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 1, cfg.DatabaseMinConns)
	require.Equal(t, 10, cfg.DatabaseMaxConns)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, "firebase_credentials.json", cfg.FCMCredentialsPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_MAX_CONNS", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, 4, cfg.DatabaseMaxConns)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadIgnoresBadInt(t *testing.T) {
	t.Setenv("DATABASE_MAX_CONNS", "not-a-number")

	cfg := Load()
	require.Equal(t, 10, cfg.DatabaseMaxConns)
}
