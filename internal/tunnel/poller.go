package tunnel

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/netsettings"
)

const (
	// DefaultPollInterval matches the backend's expectation of a fast,
	// idempotent version check.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultMaxConsecutiveErrors is the self-stop threshold for unrelated
	// poll failures.
	DefaultMaxConsecutiveErrors = 10

	pollerJoinTimeout = time.Second
)

// PollerConfig configures a settings poller.
type PollerConfig struct {
	Interval             time.Duration
	MaxConsecutiveErrors int
}

// SettingsCallback is invoked with each newly published settings snapshot.
type SettingsCallback func(settings *netsettings.Settings)

// Poller watches the backend's monotonic network-settings version counter on
// a dedicated loop and surfaces new snapshots through a callback. The loop
// runs on its own OS thread at raised scheduling priority so it keeps
// ticking while the host process is deprioritized during an active VPN
// session.
//
// A snapshot that fails to parse is dropped and not retried: the version is
// recorded before parsing, so a persistently malformed document at a stable
// version is skipped until the version moves again. This mirrors the
// backend's documented polling contract.
type Poller struct {
	backend Backend
	cfg     PollerConfig
	metrics *metrics.Metrics
	log     *slog.Logger

	callback    SettingsCallback
	lastVersion atomic.Int64
	paused      atomic.Bool
	polling     atomic.Bool

	mu        sync.Mutex
	done      chan struct{}
	finished  chan struct{}
	errStreak int
}

// NewPoller creates a poller over the given backend. Metrics may be nil.
func NewPoller(backend Backend, cfg PollerConfig, m *metrics.Metrics, log *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{backend: backend, cfg: cfg, metrics: m, log: log}
}

// SetCallback registers the settings callback. Must be called before Start.
func (p *Poller) SetCallback(cb SettingsCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = cb
}

// Start begins polling. Idempotent: a second Start while the loop is alive
// is a no-op. The last-seen version and error counter are reset, and the
// first check happens one interval after Start.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil && p.polling.Load() {
		p.log.Warn("settings polling already started")
		return
	}
	if p.done != nil {
		// Loop self-stopped after too many errors; reap the old channels.
		close(p.done)
		p.done = nil
		p.finished = nil
	}

	p.log.Debug("starting network settings polling", "interval", p.cfg.Interval)
	p.lastVersion.Store(0)
	p.errStreak = 0
	p.paused.Store(false)

	p.done = make(chan struct{})
	p.finished = make(chan struct{})
	p.polling.Store(true)
	go p.run(p.done, p.finished)
}

// Stop cancels pending ticks and joins the poll loop with a bounded wait,
// then resets counters. Safe to call when not polling.
func (p *Poller) Stop() {
	p.mu.Lock()
	done, finished := p.done, p.finished
	p.done, p.finished = nil, nil
	p.mu.Unlock()

	if done == nil {
		return
	}

	p.log.Debug("stopping network settings polling")
	close(done)
	select {
	case <-finished:
	case <-time.After(pollerJoinTimeout):
		p.log.Warn("timed out waiting for settings poll loop to finish")
	}

	p.polling.Store(false)
	p.lastVersion.Store(0)
	p.mu.Lock()
	p.errStreak = 0
	p.mu.Unlock()
}

// Pause suspends version checks. The tick timer keeps firing so Resume takes
// effect within one interval without re-registering timers.
func (p *Poller) Pause() {
	p.paused.Store(true)
}

// Resume re-enables version checks.
func (p *Poller) Resume() {
	p.paused.Store(false)
}

// IsPolling reports whether the poll loop is alive.
func (p *Poller) IsPolling() bool {
	return p.polling.Load()
}

// LastVersion returns the last settings version seen.
func (p *Poller) LastVersion() int64 {
	return p.lastVersion.Load()
}

func (p *Poller) run(done, finished chan struct{}) {
	defer close(finished)
	defer p.polling.Store(false)

	// The loop gets its own OS thread so the raised priority sticks to it
	// and not to whichever thread the goroutine migrates to.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := raisePollThreadPriority(); err != nil {
		p.log.Warn("could not raise settings poll thread priority", "error", err)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !p.tick() {
				return
			}
		}
	}
}

// tick performs one poll cycle. Returns false when the loop should
// self-terminate.
func (p *Poller) tick() bool {
	if p.paused.Load() {
		return true
	}

	err := p.check()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.errStreak = 0
		return true
	}

	p.errStreak++
	if p.metrics != nil {
		p.metrics.SettingsPollError.Inc()
	}
	p.log.Error("settings poll failed", "attempt", p.errStreak, "error", err)

	if p.errStreak >= p.cfg.MaxConsecutiveErrors {
		p.log.Error("too many consecutive poll errors, stopping settings poller",
			"errors", p.errStreak)
		return false
	}
	return true
}

func (p *Poller) check() error {
	if p.metrics != nil {
		p.metrics.SettingsPolls.Inc()
	}

	current, err := p.backend.NetworkSettingsVersion()
	if err != nil {
		return err
	}
	last := p.lastVersion.Load()
	if current <= last {
		return nil
	}

	p.log.Debug("network settings version changed", "from", last, "to", current)
	p.lastVersion.Store(current)
	if p.metrics != nil {
		p.metrics.SettingsVersion.Set(float64(current))
	}

	doc, err := p.backend.NetworkSettings()
	if err != nil {
		return err
	}
	if doc == "" || doc == "{}" {
		return nil
	}

	settings, err := netsettings.Parse([]byte(doc))
	if err != nil {
		// Dropped, not retried: the version was already recorded above.
		if p.metrics != nil {
			p.metrics.SettingsParseFail.Inc()
		}
		p.log.Error("failed to parse network settings document", "version", current, "error", err)
		return nil
	}

	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(settings)
	}
	if p.metrics != nil {
		p.metrics.SettingsApplied.Inc()
	}
	return nil
}
