package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pangolin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAndValidateClientConfig(t *testing.T) {
	path := writeConfig(t, `
endpoint: https://pangolin.example.com
tunnel:
  name: work
  mtu: 1420
  ping_interval_seconds: 5
  ping_timeout_seconds: 15
socket:
  path: /tmp/olm.sock
polling:
  settings_interval: 250ms
  status_interval: 5s
`)

	cfg := DefaultClientConfig()
	require.NoError(t, LoadAndValidate(path, &cfg))

	assert.Equal(t, "https://pangolin.example.com", cfg.Endpoint)
	assert.Equal(t, "work", cfg.Tunnel.Name)
	assert.Equal(t, 1420, cfg.Tunnel.MTU)
	assert.Equal(t, 250*time.Millisecond, cfg.Polling.SettingsInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Polling.StatusInterval.Duration())

	// Unset fields keep their defaults.
	assert.Equal(t, "info", cfg.Socket.LogLevel)
	assert.True(t, cfg.API.Enabled)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PANGOLIN_ENDPOINT", "https://env.example.com")
	path := writeConfig(t, "endpoint: ${PANGOLIN_ENDPOINT}\n")

	cfg := DefaultClientConfig()
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "https://env.example.com", cfg.Endpoint)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"missing endpoint", func(c *ClientConfig) { c.Endpoint = "" }},
		{"missing tunnel name", func(c *ClientConfig) { c.Tunnel.Name = "" }},
		{"zero mtu", func(c *ClientConfig) { c.Tunnel.MTU = 0 }},
		{"zero ping interval", func(c *ClientConfig) { c.Tunnel.PingIntervalSeconds = 0 }},
		{"missing socket path", func(c *ClientConfig) { c.Socket.Path = "" }},
		{"zero settings interval", func(c *ClientConfig) { c.Polling.SettingsInterval = 0 }},
		{"bad api listen", func(c *ClientConfig) { c.API.Listen = "not-an-addr" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			cfg.Endpoint = "https://pangolin.example.com"
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultClientConfig()
	cfg.Endpoint = "https://pangolin.example.com"
	require.NoError(t, Save(path, &cfg))

	loaded := ClientConfig{}
	require.NoError(t, Load(path, &loaded))
	assert.Equal(t, cfg.Polling.SettingsInterval, loaded.Polling.SettingsInterval)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadMissingFile(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))
}
