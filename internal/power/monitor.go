package power

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fosrl/pangolin-client/internal/metrics"
)

// Sink receives effective power mode changes. The tunnel backend's
// SetPowerMode call satisfies this.
type Sink interface {
	SetPowerMode(mode string) (string, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(mode string) (string, error)

func (f SinkFunc) SetPowerMode(mode string) (string, error) { return f(mode) }

// Monitor watches a Source and reacts to effective mode changes: it notifies
// the sink, and pauses or resumes registered throttleables. Only changes are
// forwarded; repeated snapshots with the same effective mode are ignored.
type Monitor struct {
	source  Source
	sink    Sink
	metrics *metrics.Metrics
	log     *slog.Logger

	mu          sync.Mutex
	throttled   []Throttleable
	currentMode Mode
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewMonitor creates a monitor. Sink and metrics may be nil.
func NewMonitor(source Source, sink Sink, m *metrics.Metrics, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		source:      source,
		sink:        sink,
		metrics:     m,
		log:         log,
		currentMode: ModeNormal,
	}
}

// Register adds a throttleable. If the monitor is already in low power mode
// the throttleable is paused immediately so it cannot run against the
// current policy.
func (m *Monitor) Register(t Throttleable) {
	m.mu.Lock()
	m.throttled = append(m.throttled, t)
	low := m.currentMode == ModeLow
	m.mu.Unlock()
	if low {
		t.Pause()
	}
}

// Mode returns the current effective power mode.
func (m *Monitor) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentMode
}

// Start applies the source's current state, then watches for transitions
// until ctx is cancelled or Stop is called. Idempotent while running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	// The device may already be dozing when the tunnel comes up.
	m.apply(m.source.Current().Mode())

	go func() {
		defer close(done)
		events := m.source.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-events:
				if !ok {
					return
				}
				m.apply(state.Mode())
			}
		}
	}()
}

// Stop halts the watch loop. Safe to call when not started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) apply(mode Mode) {
	m.mu.Lock()
	if mode == m.currentMode {
		m.mu.Unlock()
		return
	}
	m.currentMode = mode
	throttled := make([]Throttleable, len(m.throttled))
	copy(throttled, m.throttled)
	m.mu.Unlock()

	m.log.Info("power mode changed", "mode", mode)
	if m.metrics != nil {
		v := 0.0
		if mode == ModeLow {
			v = 1.0
		}
		m.metrics.PowerMode.Set(v)
	}

	if m.sink != nil {
		if _, err := m.sink.SetPowerMode(string(mode)); err != nil {
			m.log.Error("failed to push power mode to backend", "mode", mode, "error", err)
		}
	}

	for _, t := range throttled {
		if mode == ModeLow {
			t.Pause()
		} else {
			t.Resume()
		}
	}
}
