package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These tests mutate process env, so they do not run in parallel.

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PAYLEDGER_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "MOLLIE_API_KEY", cfg.Gateway.APIKeyEnv)
	require.True(t, cfg.Gateway.Testmode)
	require.Equal(t, 15*time.Second, cfg.Gateway.Timeout)
	require.Equal(t, "EUR", cfg.Gateway.Currency)
	require.Equal(t, "2", cfg.FeePercent().String())
	require.Equal(t, "Europe/Amsterdam", cfg.Location().String())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[gateway]
base_url = "https://gateway.test"
testmode = false
timeout = "3s"
client_id = "app_123"

[fees]
application_percent = 1.5

[ui]
timezone = "Not/AZone"
`), 0o600))
	t.Setenv("PAYLEDGER_CONFIG", path)
	t.Setenv("PAYLEDGER_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("PAYLEDGER_GATEWAY_API_KEY", "")
	t.Setenv("TEST_GATEWAY_KEY", "test_abc")
	t.Setenv("PAYLEDGER_GATEWAY_API_KEY_ENV", "TEST_GATEWAY_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	require.False(t, cfg.Gateway.Testmode)
	require.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	require.Equal(t, "1.5", cfg.FeePercent().String())
	require.Equal(t, time.UTC, cfg.Location())

	gc := cfg.GatewayClientConfig("")
	require.Equal(t, "https://gateway.test", gc.BaseURL)
	require.Equal(t, "test_abc", gc.APIKey)
	require.Equal(t, "app_123", gc.ClientID)
	require.Equal(t, "from_keyring", cfg.GatewayClientConfig("from_keyring").APIKey)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[gateway\nbase_url = "), 0o600))
	t.Setenv("PAYLEDGER_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
}

func TestSaveRoundTripsWithoutSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	t.Setenv("PAYLEDGER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.Gateway.APIKey = "live_secret"
	cfg.Gateway.WebhookURL = "https://ledger.example/webhook"
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, Save(cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "live_secret")

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://ledger.example/webhook", loaded.Gateway.WebhookURL)
	require.Equal(t, "localhost:6379", loaded.Redis.Addr)
	require.Equal(t, cfg.Gateway.Timeout, loaded.Gateway.Timeout)
	require.Empty(t, loaded.Gateway.APIKey)
}
