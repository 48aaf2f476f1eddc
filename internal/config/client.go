package config

import (
	"fmt"
	"net"
	"time"

	"github.com/fosrl/pangolin-client/internal/logging"
)

// ClientConfig is the main configuration for the Pangolin client.
type ClientConfig struct {
	Endpoint string         `yaml:"endpoint" json:"endpoint"`
	Tunnel   TunnelSettings `yaml:"tunnel" json:"tunnel"`
	Socket   SocketSettings `yaml:"socket" json:"socket"`
	Polling  PollSettings   `yaml:"polling" json:"polling"`
	API      APIConfig      `yaml:"api" json:"api"`
	Logging  logging.Config `yaml:"logging" json:"logging"`
}

// TunnelSettings contains tunnel start parameters. The identity id/secret are
// not stored here; they come from the credential store at connect time.
type TunnelSettings struct {
	Name                string   `yaml:"name" json:"name"`
	MTU                 int      `yaml:"mtu" json:"mtu"`
	DNS                 string   `yaml:"dns,omitempty" json:"dns,omitempty"`
	UpstreamDNS         []string `yaml:"upstream_dns,omitempty" json:"upstream_dns,omitempty"`
	Holepunch           bool     `yaml:"holepunch" json:"holepunch"`
	PingIntervalSeconds int      `yaml:"ping_interval_seconds" json:"ping_interval_seconds"`
	PingTimeoutSeconds  int      `yaml:"ping_timeout_seconds" json:"ping_timeout_seconds"`
	OverrideDNS         bool     `yaml:"override_dns" json:"override_dns"`
	TunnelDNS           bool     `yaml:"tunnel_dns" json:"tunnel_dns"`
	OrgID               string   `yaml:"org_id,omitempty" json:"org_id,omitempty"`
}

// SocketSettings configures the local control socket exposed by the native
// backend.
type SocketSettings struct {
	Path     string `yaml:"path" json:"path"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	Agent    string `yaml:"agent" json:"agent"`
}

// PollSettings configures the settings and status poll loops.
type PollSettings struct {
	SettingsInterval Duration `yaml:"settings_interval" json:"settings_interval"`
	StatusInterval   Duration `yaml:"status_interval" json:"status_interval"`
}

// APIConfig configures the local REST API used by the desktop shell.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// DefaultClientConfig returns a client configuration with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Tunnel: TunnelSettings{
			Name:                "pangolin",
			MTU:                 1280,
			PingIntervalSeconds: 10,
			PingTimeoutSeconds:  30,
			Holepunch:           true,
		},
		Socket: SocketSettings{
			Path:     "/var/run/pangolin/olm.sock",
			LogLevel: "info",
			Agent:    "desktop",
		},
		Polling: PollSettings{
			SettingsInterval: Duration(500 * time.Millisecond),
			StatusInterval:   Duration(3 * time.Second),
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:7390",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
func (c *ClientConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Tunnel.Name == "" {
		return fmt.Errorf("tunnel name is required")
	}
	if c.Tunnel.MTU <= 0 {
		return fmt.Errorf("tunnel mtu must be positive, got %d", c.Tunnel.MTU)
	}
	if c.Tunnel.PingIntervalSeconds <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.Tunnel.PingTimeoutSeconds <= 0 {
		return fmt.Errorf("ping timeout must be positive")
	}
	if c.Socket.Path == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.Polling.SettingsInterval.Duration() <= 0 {
		return fmt.Errorf("settings poll interval must be positive")
	}
	if c.Polling.StatusInterval.Duration() <= 0 {
		return fmt.Errorf("status poll interval must be positive")
	}
	if c.API.Enabled {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			return fmt.Errorf("invalid api listen address %q: %w", c.API.Listen, err)
		}
	}
	return nil
}
