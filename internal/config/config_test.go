package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "bazaar.db", cfg.DBFile)
	assert.Empty(t, cfg.Token)
	assert.Equal(t, 20*time.Second, cfg.Heartbeat)
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMax)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5.0, cfg.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, cfg.SummaryTTL)
	assert.Equal(t, 1600, cfg.MaxImageDimension)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvironmentAndDotEnv(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte(
		"BAZAAR_BASE_URL=https://api.example.com\n"+
			"BAZAAR_RECONNECT_ATTEMPTS=3\n"+
			"BAZAAR_LOG_LEVEL=warn\n",
	), 0o600))

	t.Setenv("BAZAAR_LOG_LEVEL", "debug")
	t.Setenv("BAZAAR_HEARTBEAT_INTERVAL", "45s")
	// godotenv sets variables for the process; make sure they are removed.
	t.Setenv("BAZAAR_BASE_URL", "")
	require.NoError(t, os.Unsetenv("BAZAAR_BASE_URL"))
	t.Setenv("BAZAAR_RECONNECT_ATTEMPTS", "")
	require.NoError(t, os.Unsetenv("BAZAAR_RECONNECT_ATTEMPTS"))

	cfg, err := Load(dotenv)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, "debug", cfg.LogLevel, "environment wins over .env")
	assert.Equal(t, 45*time.Second, cfg.Heartbeat)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"log level", "BAZAAR_LOG_LEVEL", "verbose"},
		{"scheme", "BAZAAR_BASE_URL", "ftp://example.com"},
		{"not a url", "BAZAAR_BASE_URL", "localhost"},
		{"heartbeat", "BAZAAR_HEARTBEAT_INTERVAL", "0s"},
		{"attempts", "BAZAAR_RECONNECT_ATTEMPTS", "-1"},
		{"duration syntax", "BAZAAR_TYPING_TIMEOUT", "soon"},
		{"backoff order", "BAZAAR_RECONNECT_MAX", "500ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(missingEnvFile(t))
			require.Error(t, err)
		})
	}
}
