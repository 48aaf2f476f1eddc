package tunnel

import (
	"encoding/json"
	"log/slog"
)

// Config holds the parameters sent to the backend when starting a tunnel.
// Field names are a bit-exact contract with the native library: optional
// fields are omitted when empty, upstreamDNS is always present.
type Config struct {
	Endpoint            string   `json:"endpoint"`
	ID                  string   `json:"id"`
	Secret              string   `json:"secret"`
	MTU                 int      `json:"mtu"`
	DNS                 string   `json:"dns"`
	Holepunch           bool     `json:"holepunch"`
	PingIntervalSeconds int      `json:"pingIntervalSeconds"`
	PingTimeoutSeconds  int      `json:"pingTimeoutSeconds"`
	UserToken           string   `json:"userToken,omitempty"`
	OrgID               string   `json:"orgId,omitempty"`
	UpstreamDNS         []string `json:"upstreamDNS"`
	OverrideDNS         bool     `json:"overrideDNS"`
	TunnelDNS           bool     `json:"tunnelDNS"`
}

// JSON serializes the config for the backend.
func (c *Config) JSON() (string, error) {
	cfg := *c
	if cfg.UpstreamDNS == nil {
		cfg.UpstreamDNS = []string{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LogValue implements slog.LogValuer. Secret values are never logged.
func (c *Config) LogValue() slog.Value {
	userToken := ""
	if c.UserToken != "" {
		userToken = "[REDACTED]"
	}
	return slog.GroupValue(
		slog.String("endpoint", c.Endpoint),
		slog.String("id", c.ID),
		slog.String("secret", "[REDACTED]"),
		slog.Int("mtu", c.MTU),
		slog.String("dns", c.DNS),
		slog.Bool("holepunch", c.Holepunch),
		slog.Int("pingIntervalSeconds", c.PingIntervalSeconds),
		slog.Int("pingTimeoutSeconds", c.PingTimeoutSeconds),
		slog.String("userToken", userToken),
		slog.String("orgId", c.OrgID),
		slog.Any("upstreamDNS", c.UpstreamDNS),
		slog.Bool("overrideDNS", c.OverrideDNS),
		slog.Bool("tunnelDNS", c.TunnelDNS),
	)
}

// InitConfig holds the one-time parameters for initializing the tunnel
// identity subsystem (OLM).
type InitConfig struct {
	EnableAPI  bool   `json:"enableAPI"`
	SocketPath string `json:"socketPath"`
	LogLevel   string `json:"logLevel"`
	Version    string `json:"version"`
	Agent      string `json:"agent"`
}

// JSON serializes the init config for the backend.
func (c *InitConfig) JSON() (string, error) {
	cfg := *c
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
