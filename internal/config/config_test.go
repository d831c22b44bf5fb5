package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("PLAID_CLIENT_ID", "")
	t.Setenv("PLAID_SECRET", "")
	t.Setenv("PLAID_ENV", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "domus.db", cfg.DBPath)
	assert.Equal(t, "sandbox", cfg.BankEnv)
	assert.True(t, cfg.SimulationMode)
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
}

func TestLoadWithCredentials(t *testing.T) {
	t.Setenv("PLAID_CLIENT_ID", "client-123")
	t.Setenv("PLAID_SECRET", "secret-456")
	t.Setenv("PLAID_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.SimulationMode)
	assert.Contains(t, cfg.BankHost(), "development")
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("PLAID_ENV", "staging")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging")
}

func TestLoadParsesOrigins(t *testing.T) {
	t.Setenv("PLAID_ENV", "sandbox")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
}
