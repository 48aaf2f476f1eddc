// Package manager wires the tunnel controller, status poller and power
// monitor into a single connect/disconnect surface for the shell.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fosrl/pangolin-client/internal/config"
	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/power"
	"github.com/fosrl/pangolin-client/internal/status"
	"github.com/fosrl/pangolin-client/internal/tunnel"
	"github.com/fosrl/pangolin-client/internal/util"
	"github.com/fosrl/pangolin-client/internal/version"
)

// Credentials is the tunnel identity resolved at connect time.
type Credentials struct {
	ID        string
	Secret    string
	UserToken string
}

// CredentialStore resolves tunnel credentials. Implementations typically
// wrap the host platform's keystore.
type CredentialStore interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// CredentialFunc adapts a function to CredentialStore.
type CredentialFunc func(ctx context.Context) (Credentials, error)

func (f CredentialFunc) Credentials(ctx context.Context) (Credentials, error) { return f(ctx) }

// ConnectOptions tweaks a single Connect call.
type ConnectOptions struct {
	// OrgID overrides the configured organization for this session.
	OrgID string
}

// Manager owns the lifetime of one tunnel session.
type Manager struct {
	cfg          config.ClientConfig
	creds        CredentialStore
	controller   *tunnel.Controller
	statusClient *status.Client
	statusPoller *status.Poller
	powerMon     *power.Monitor
	log          *slog.Logger

	mu        sync.Mutex
	session   *session
	connected bool
}

// session is the Tunnel identity handed to the controller for one connect.
type session struct {
	name string
	log  *slog.Logger
}

func (s *session) Name() string { return s.name }

func (s *session) OnStateChange(state tunnel.State) {
	s.log.Info("tunnel state changed", "tunnel", s.name, "state", state)
}

// New creates a manager. The power monitor may be nil when the host has no
// power state source.
func New(cfg config.ClientConfig, creds CredentialStore, controller *tunnel.Controller,
	statusClient *status.Client, m *metrics.Metrics, powerMon *power.Monitor, log *slog.Logger) *Manager {

	if log == nil {
		log = slog.Default()
	}
	mgr := &Manager{
		cfg:          cfg,
		creds:        creds,
		controller:   controller,
		statusClient: statusClient,
		statusPoller: status.NewPoller(statusClient, cfg.Polling.StatusInterval.Duration(), m, log),
		powerMon:     powerMon,
		log:          log,
	}

	if powerMon != nil {
		powerMon.Register(power.ThrottleFuncs{
			PauseFunc:  controller.PauseSettingsPolling,
			ResumeFunc: controller.ResumeSettingsPolling,
		})
		powerMon.Register(power.ThrottleFuncs{
			PauseFunc:  mgr.statusPoller.Pause,
			ResumeFunc: mgr.statusPoller.Resume,
		})
	}
	return mgr
}

// StatusPoller exposes the status poller for snapshot reads.
func (m *Manager) StatusPoller() *status.Poller { return m.statusPoller }

// Connected reports whether a session is up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Connect resolves credentials, brings the tunnel up and starts the status
// poller and power monitor. Connecting while connected replaces the running
// session; the controller rolls back to it if the new one fails to start.
func (m *Manager) Connect(ctx context.Context, opts ConnectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.creds.Credentials(ctx)
	if err != nil {
		return util.WrapError(err, "resolve credentials")
	}
	if creds.ID == "" || creds.Secret == "" {
		return fmt.Errorf("%w: missing tunnel credentials", util.ErrInvalidConfig)
	}

	orgID := m.cfg.Tunnel.OrgID
	if opts.OrgID != "" {
		orgID = opts.OrgID
	}

	tcfg := &tunnel.Config{
		Endpoint:            m.cfg.Endpoint,
		ID:                  creds.ID,
		Secret:              creds.Secret,
		MTU:                 m.cfg.Tunnel.MTU,
		DNS:                 m.cfg.Tunnel.DNS,
		Holepunch:           m.cfg.Tunnel.Holepunch,
		PingIntervalSeconds: m.cfg.Tunnel.PingIntervalSeconds,
		PingTimeoutSeconds:  m.cfg.Tunnel.PingTimeoutSeconds,
		UserToken:           creds.UserToken,
		OrgID:               orgID,
		UpstreamDNS:         m.cfg.Tunnel.UpstreamDNS,
		OverrideDNS:         m.cfg.Tunnel.OverrideDNS,
		TunnelDNS:           m.cfg.Tunnel.TunnelDNS,
	}
	initCfg := &tunnel.InitConfig{
		EnableAPI:  true,
		SocketPath: m.cfg.Socket.Path,
		LogLevel:   m.cfg.Socket.LogLevel,
		Version:    version.Version,
		Agent:      m.cfg.Socket.Agent,
	}

	sess := &session{name: m.cfg.Tunnel.Name, log: m.log}
	if _, err := m.controller.SetState(sess, tunnel.StateUp, tcfg, initCfg); err != nil {
		return util.WrapError(err, "bring tunnel up")
	}
	m.session = sess
	m.connected = true

	m.statusPoller.Start(ctx)
	if m.powerMon != nil {
		m.powerMon.Start(ctx)
	}
	m.log.Info("connected", "tunnel", sess.name, "endpoint", m.cfg.Endpoint, "org", orgID)
	return nil
}

// Disconnect tears the tunnel down and stops the status poller. Safe to call
// when not connected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if _, err := m.controller.SetState(m.session, tunnel.StateDown, nil, nil); err != nil {
			m.log.Error("error bringing tunnel down", "error", err)
		}
	}
	m.session = nil
	m.connected = false

	m.statusPoller.Cleanup()
	if m.powerMon != nil {
		m.powerMon.Stop()
	}
	m.log.Info("disconnected")
	return nil
}

// SwitchOrg asks the backend to re-register under another organization via
// the control socket. Requires a connected session.
func (m *Manager) SwitchOrg(ctx context.Context, orgID string) error {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()

	if !connected {
		return util.ErrNotConnected
	}
	if orgID == "" {
		return fmt.Errorf("%w: org id is required", util.ErrInvalidConfig)
	}
	if err := m.statusClient.SwitchOrg(ctx, orgID); err != nil {
		return util.WrapError(err, "switch org")
	}
	m.log.Info("requested organization switch", "org", orgID)
	return nil
}

// Exit asks the backend to terminate its session, then disconnects locally.
func (m *Manager) Exit(ctx context.Context) error {
	if err := m.statusClient.Exit(ctx); err != nil {
		m.log.Warn("backend exit request failed", "error", err)
	}
	return m.Disconnect(ctx)
}
