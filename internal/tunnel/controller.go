package tunnel

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/netsettings"
)

const (
	serviceStartTimeout = 2 * time.Second
	serviceStopTimeout  = 2 * time.Second

	// placeholderAddress is an unroutable dummy address used to bring the
	// interface up before the backend pushes real settings.
	placeholderAddress = "169.254.169.254"
)

// Controller is the sole authority for bringing tunnels up and down. It
// coordinates identity initialization, interface creation and backend start,
// enforces the at-most-one-tunnel-up invariant, and rolls a failed switch
// back to the previously running tunnel.
//
// All transitions are serialized by an internal mutex, so concurrent
// SetState calls are safe.
type Controller struct {
	backend   Backend
	service   Service
	pollerCfg PollerConfig
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu            sync.Mutex
	currentTunnel Tunnel
	currentConfig *Config
	tunnelActive  bool
	ownedTun      RawTun
	device        Device
	poller        *Poller
}

// NewController creates a lifecycle controller. Metrics may be nil.
func NewController(backend Backend, service Service, pollerCfg PollerConfig, m *metrics.Metrics, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		backend:   backend,
		service:   service,
		pollerCfg: pollerCfg,
		metrics:   m,
		log:       log,
	}
}

// State returns the lifecycle state of the given tunnel.
func (c *Controller) State(tunnel Tunnel) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(tunnel)
}

func (c *Controller) stateLocked(tunnel Tunnel) State {
	if c.currentTunnel == tunnel && tunnel != nil {
		return StateUp
	}
	return StateDown
}

// RunningTunnelNames returns the names of tunnels currently up (zero or one).
func (c *Controller) RunningTunnelNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentTunnel != nil {
		return []string{c.currentTunnel.Name()}
	}
	return nil
}

// SetState transitions the given tunnel to the requested state. StateToggle
// resolves to the opposite of the tunnel's current state first. Requesting
// the state the tunnel is already in, with the same config reference, is a
// no-op.
//
// Bringing a tunnel up while another is running tears the running one down
// first; if the new tunnel then fails to start, the controller restores the
// original tunnel before returning the error.
func (c *Controller) SetState(tunnel Tunnel, state State, cfg *Config, initCfg *InitConfig) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	original := c.stateLocked(tunnel)
	if state == StateToggle {
		if original == StateUp {
			state = StateDown
		} else {
			state = StateUp
		}
	}
	if state == original && tunnel == c.currentTunnel && cfg == c.currentConfig {
		return original, nil
	}

	switch state {
	case StateUp:
		originalConfig := c.currentConfig
		originalTunnel := c.currentTunnel
		if c.currentTunnel != nil {
			c.setStateLocked(c.currentTunnel, nil, nil, StateDown)
		}
		if err := c.setStateLocked(tunnel, cfg, initCfg, StateUp); err != nil {
			if originalTunnel != nil {
				if rbErr := c.setStateLocked(originalTunnel, originalConfig, initCfg, StateUp); rbErr != nil {
					c.log.Error("failed to restore previous tunnel after failed switch",
						"tunnel", originalTunnel.Name(), "error", rbErr)
				}
			}
			return c.stateLocked(tunnel), err
		}
	case StateDown:
		if tunnel == c.currentTunnel {
			c.setStateLocked(tunnel, nil, nil, StateDown)
		}
	}

	return c.stateLocked(tunnel), nil
}

func (c *Controller) setStateLocked(tunnel Tunnel, cfg *Config, initCfg *InitConfig, state State) error {
	c.log.Info("bringing tunnel", "tunnel", tunnel.Name(), "state", state)

	if state == StateUp {
		if err := c.bringUpLocked(tunnel, cfg, initCfg); err != nil {
			return err
		}
	} else {
		c.bringDownLocked()
	}

	if c.metrics != nil {
		c.metrics.StateTransitions.WithLabelValues(string(state)).Inc()
		up := 0.0
		if state == StateUp {
			up = 1.0
		}
		c.metrics.TunnelUp.WithLabelValues(tunnel.Name()).Set(up)
	}
	tunnel.OnStateChange(state)
	return nil
}

func (c *Controller) bringUpLocked(tunnel Tunnel, cfg *Config, initCfg *InitConfig) error {
	if cfg == nil {
		return ErrMissingConfig
	}
	if !c.service.Authorized() {
		return ErrNotAuthorized
	}

	device, err := c.service.Start(serviceStartTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnableToStartVPN, err)
	}
	c.device = device

	if c.tunnelActive {
		c.log.Warn("tunnel already up")
		return nil
	}

	if initCfg != nil {
		initJSON, err := initCfg.JSON()
		if err != nil {
			c.countActivationError()
			return fmt.Errorf("%w: serialize init config: %v", ErrActivation, err)
		}
		c.log.Debug("initializing OLM")
		result, err := c.backend.InitOlm(initJSON)
		if err != nil {
			c.countActivationError()
			return fmt.Errorf("%w: %v", ErrActivation, err)
		}
		if rerr := ResultError("initOlm", result); rerr != nil {
			c.countActivationError()
			return fmt.Errorf("%w: %v", ErrActivation, rerr)
		}
		c.log.Debug("OLM initialized", "result", result)
	}

	// Bring the interface up with a dummy unroutable address; the backend
	// pushes real settings immediately after start.
	builder := c.device.Builder()
	builder.SetSession(tunnel.Name())
	builder.SetMTU(cfg.MTU)
	builder.SetMetered(false)
	builder.SetBlocking(true)
	if err := builder.AddAddress(placeholderAddress, 32); err != nil {
		c.countActivationError()
		return fmt.Errorf("%w: %v", ErrTunCreation, err)
	}

	tun, err := builder.Establish()
	if err != nil {
		c.countActivationError()
		return fmt.Errorf("%w: %v", ErrTunCreation, err)
	}
	c.ownedTun = tun

	cfgJSON, err := cfg.JSON()
	if err != nil {
		c.releaseOwnedTunLocked()
		c.countActivationError()
		return fmt.Errorf("%w: serialize tunnel config: %v", ErrActivation, err)
	}

	fd := tun.DetachFd()
	c.log.Debug("starting tunnel", "fd", fd, "config", cfg)
	result, startErr := c.backend.StartTunnel(fd, cfgJSON)
	if startErr == nil {
		startErr = ResultError("startTunnel", result)
	}
	if startErr != nil {
		c.log.Error("failed to start tunnel", "error", startErr)
		c.releaseOwnedTunLocked()
		// Best effort: the service must not linger after a failed start.
		if stopErr := c.service.Stop(serviceStopTimeout); stopErr != nil {
			c.log.Warn("failed to stop VPN service after start failure", "error", stopErr)
		}
		c.countActivationError()
		return fmt.Errorf("%w: %v", ErrActivation, startErr)
	}
	c.log.Debug("tunnel started", "result", result)
	c.ownedTun = nil // descriptor now owned by the backend

	c.tunnelActive = true
	c.currentTunnel = tunnel
	c.currentConfig = cfg

	c.startSettingsPollingLocked(tunnel.Name())
	return nil
}

func (c *Controller) bringDownLocked() {
	c.stopSettingsPollingLocked()

	// Always attempt backend and service cleanup, even when the active flag
	// is stale, so a half-started tunnel cannot leak OS state.
	if !c.tunnelActive {
		c.log.Warn("tunnel not marked as active, attempting cleanup anyway")
	} else {
		result, err := c.backend.StopTunnel()
		if err != nil {
			c.log.Error("stopTunnel call failed", "error", err)
		} else {
			c.log.Debug("tunnel stopped", "result", result)
		}
	}

	c.tunnelActive = false
	c.currentTunnel = nil
	c.currentConfig = nil
	c.releaseOwnedTunLocked()

	if err := c.service.Stop(serviceStopTimeout); err != nil {
		c.log.Warn("failed to stop VPN service", "error", err)
	}
}

func (c *Controller) releaseOwnedTunLocked() {
	if c.ownedTun == nil {
		return
	}
	if err := c.ownedTun.Close(); err != nil {
		c.log.Warn("error closing tunnel descriptor", "error", err)
	}
	c.ownedTun = nil
}

func (c *Controller) countActivationError() {
	if c.metrics != nil {
		c.metrics.ActivationErrors.Inc()
	}
}

func (c *Controller) startSettingsPollingLocked(tunnelName string) {
	if c.poller == nil {
		c.poller = NewPoller(c.backend, c.pollerCfg, c.metrics, c.log)
	}

	applier := NewApplier(c.backend, c.device, c.metrics, c.log)
	c.poller.SetCallback(func(settings *netsettings.Settings) {
		if err := applier.Apply(settings, tunnelName); err != nil {
			c.log.Error("failed to apply network settings", "tunnel", tunnelName, "error", err)
		}
	})
	c.poller.Start()
	c.log.Debug("started network settings polling", "tunnel", tunnelName)
}

func (c *Controller) stopSettingsPollingLocked() {
	if c.poller != nil {
		c.poller.Stop()
		c.log.Debug("stopped network settings polling")
	}
}

// PauseSettingsPolling suspends the settings poll loop (low power mode).
func (c *Controller) PauseSettingsPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poller != nil {
		c.poller.Pause()
		c.log.Debug("paused network settings polling")
	}
}

// ResumeSettingsPolling resumes the settings poll loop.
func (c *Controller) ResumeSettingsPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poller != nil {
		c.poller.Resume()
		c.log.Debug("resumed network settings polling")
	}
}
