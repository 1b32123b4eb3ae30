package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saquib34/react-iframe-bridge/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Origin = "https://host.example.com"
	cfg.AllowedOrigins = []string{"https://frame.example.com"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, WildcardAll, cfg.TargetOrigin)
	assert.Equal(t, 5*time.Second, cfg.Communication.Timeout())
	assert.Equal(t, time.Second, cfg.Communication.RetryDelay())
	assert.Equal(t, 3, cfg.Communication.RetryAttempts)
}

func TestCommunicationConfig_ZeroFallbacks(t *testing.T) {
	var cc CommunicationConfig
	assert.Equal(t, 5*time.Second, cc.Timeout())
	assert.Equal(t, time.Second, cc.RetryDelay())

	cc.TimeoutMs = 50
	assert.Equal(t, 50*time.Millisecond, cc.Timeout())
}

func TestConfig_Validate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	assert.NoError(t, validConfig().Validate(logger))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty origin", func(c *Config) { c.Origin = "" }},
		{"empty target origin", func(c *Config) { c.TargetOrigin = "" }},
		{"empty allow-list", func(c *Config) { c.AllowedOrigins = nil }},
		{"empty entry", func(c *Config) { c.AllowedOrigins = []string{""} }},
		{"bare wildcard domain", func(c *Config) { c.AllowedOrigins = []string{"*."} }},
		{"embedded wildcard", func(c *Config) { c.AllowedOrigins = []string{"https://*.example.com"} }},
		{"negative size", func(c *Config) { c.MaxMessageSize = -1 }},
		{"negative rate", func(c *Config) { c.RateLimitPerSecond = -1 }},
		{"negative timeout", func(c *Config) { c.Communication.TimeoutMs = -1 }},
		{"negative retries", func(c *Config) { c.Communication.RetryAttempts = -1 }},
		{"negative retry delay", func(c *Config) { c.Communication.RetryDelayMs = -1 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := validConfig()
			test.mutate(cfg)
			err := cfg.Validate(logger)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestConfig_Validate_WildcardPatterns(t *testing.T) {
	cfg := validConfig()
	cfg.AllowedOrigins = []string{"https://exact.example.com", "*.stripe.com", WildcardAll}

	assert.NoError(t, cfg.Validate(nil))
}

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.json")
	doc := `{
		"origin": "https://host.example.com",
		"targetOrigin": "https://frame.example.com",
		"allowedOrigins": ["https://frame.example.com", "*.stripe.com"],
		"maxMessageSize": 65536,
		"rateLimitPerSecond": 100,
		"communication": {"timeout": 2500, "retryAttempts": 2, "retryDelay": 200, "debug": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://host.example.com", cfg.Origin)
	assert.Equal(t, []string{"https://frame.example.com", "*.stripe.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 65536, cfg.MaxMessageSize)
	assert.Equal(t, 100, cfg.RateLimitPerSecond)
	assert.Equal(t, 2500*time.Millisecond, cfg.Communication.Timeout())
	assert.Equal(t, 2, cfg.Communication.RetryAttempts)
	assert.True(t, cfg.Communication.Debug)
	assert.NoError(t, cfg.Validate(nil))
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	doc := `
origin: https://host.example.com
targetOrigin: "*"
allowedOrigins:
  - https://frame.example.com
communication:
  timeout: 1000
  debug: false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, WildcardAll, cfg.TargetOrigin)
	assert.Equal(t, time.Second, cfg.Communication.Timeout())
	assert.NoError(t, cfg.Validate(nil))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/bridge.json")
	require.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bridge.toml")
	require.NoError(t, os.WriteFile(bad, []byte("x = 1"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte("{"), 0o600))
	_, err = Load(badJSON)
	require.Error(t, err)
}
