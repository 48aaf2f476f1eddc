package status

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fosrl/pangolin-client/internal/metrics"
)

// DefaultPollInterval is how often the poller reads the control socket.
const DefaultPollInterval = 3 * time.Second

// OnStatus is invoked with every successfully fetched status document.
type OnStatus func(*Status)

// Poller periodically reads the control socket and keeps the latest
// Snapshot. A missing socket is treated as "backend not running", not as an
// error. Backend-reported errors are surfaced once per error code: a code is
// logged when first seen and re-armed only after the backend reports a clean
// status, so a persistent condition does not flood the log at poll rate.
type Poller struct {
	client   *Client
	interval time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger

	onStatus OnStatus
	paused   atomic.Bool

	mu        sync.Mutex
	snapshot  Snapshot
	seenCodes map[string]struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller creates a status poller. Metrics and callback may be nil.
func NewPoller(client *Client, interval time.Duration, m *metrics.Metrics, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		client:    client,
		interval:  interval,
		metrics:   m,
		log:       log,
		seenCodes: make(map[string]struct{}),
	}
}

// SetOnStatus registers a callback for fetched documents. Must be called
// before Start.
func (p *Poller) SetOnStatus(cb OnStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatus = cb
}

// Start begins polling until ctx is cancelled or Cleanup is called. The
// first poll happens immediately unless the poller is paused. Idempotent
// while running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		if !p.paused.Load() {
			p.poll(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !p.paused.Load() {
					p.poll(ctx)
				}
			}
		}
	}()
}

// Pause suspends polls without stopping the loop.
func (p *Poller) Pause() { p.paused.Store(true) }

// Resume re-enables polls.
func (p *Poller) Resume() { p.paused.Store(false) }

// Snapshot returns the last observation.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Cleanup stops the poll loop and waits for it to finish. Idempotent.
func (p *Poller) Cleanup() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) poll(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.StatusPolls.Inc()
	}

	if !p.client.SocketExists() {
		p.mu.Lock()
		p.snapshot = Snapshot{Available: false, UpdatedAt: time.Now(),
			LastError: "control socket not present"}
		p.mu.Unlock()
		return
	}

	st, err := p.client.Status(ctx)
	if err != nil {
		kind := "unknown"
		var serr *SocketError
		if errors.As(err, &serr) {
			kind = serr.Kind
		}
		if p.metrics != nil {
			p.metrics.StatusPollErrors.WithLabelValues(kind).Inc()
		}
		p.log.Warn("status poll failed", "kind", kind, "error", err)

		p.mu.Lock()
		p.snapshot = Snapshot{Available: false, UpdatedAt: time.Now(), LastError: err.Error()}
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.snapshot = Snapshot{Available: true, Status: st, UpdatedAt: time.Now()}
	cb := p.onStatus
	p.handleBackendErrorLocked(st)
	p.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

func (p *Poller) handleBackendErrorLocked(st *Status) {
	if st.Error == nil {
		// Clean status re-arms every code for one more report.
		if len(p.seenCodes) > 0 {
			p.seenCodes = make(map[string]struct{})
		}
		return
	}

	code := st.Error.Code
	if _, seen := p.seenCodes[code]; seen {
		return
	}
	p.seenCodes[code] = struct{}{}
	if p.metrics != nil {
		p.metrics.StatusErrorsByCode.WithLabelValues(code).Inc()
	}
	p.log.Error("backend reported error", "code", code, "message", st.Error.Message)
}
