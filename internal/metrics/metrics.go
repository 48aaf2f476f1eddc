// Package metrics provides Prometheus metrics for the Pangolin client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Tunnel lifecycle
	TunnelUp          *prometheus.GaugeVec
	StateTransitions  *prometheus.CounterVec
	ActivationErrors  prometheus.Counter

	// Settings poller
	SettingsVersion   prometheus.Gauge
	SettingsPolls     prometheus.Counter
	SettingsPollError prometheus.Counter
	SettingsApplied   prometheus.Counter
	SettingsParseFail prometheus.Counter

	// Interface hot-swap
	HotSwaps     prometheus.Counter
	HotSwapFails prometheus.Counter

	// Status poller
	StatusPolls        prometheus.Counter
	StatusPollErrors   *prometheus.CounterVec
	StatusErrorsByCode *prometheus.CounterVec

	// Power state
	PowerMode prometheus.Gauge // 0 = normal, 1 = low

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.TunnelUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pangolin_tunnel_up",
			Help: "Whether the named tunnel is up (1) or down (0)",
		},
		[]string{"tunnel"},
	)

	m.StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pangolin_tunnel_state_transitions_total",
			Help: "Total tunnel state transitions",
		},
		[]string{"state"},
	)

	m.ActivationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_tunnel_activation_errors_total",
			Help: "Total failed tunnel activations",
		},
	)

	m.SettingsVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pangolin_network_settings_version",
			Help: "Last observed network settings version",
		},
	)

	m.SettingsPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_settings_polls_total",
			Help: "Total settings poll ticks that performed a version check",
		},
	)

	m.SettingsPollError = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_settings_poll_errors_total",
			Help: "Total settings poll ticks that failed",
		},
	)

	m.SettingsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_settings_applied_total",
			Help: "Total network settings snapshots delivered to the callback",
		},
	)

	m.SettingsParseFail = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_settings_parse_failures_total",
			Help: "Total settings documents dropped due to parse failures",
		},
	)

	m.HotSwaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_interface_hotswaps_total",
			Help: "Total successful tunnel interface hot-swaps",
		},
	)

	m.HotSwapFails = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_interface_hotswap_failures_total",
			Help: "Total failed tunnel interface hot-swaps",
		},
	)

	m.StatusPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pangolin_status_polls_total",
			Help: "Total status polls issued against the control socket",
		},
	)

	m.StatusPollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pangolin_status_poll_errors_total",
			Help: "Total status poll failures by kind",
		},
		[]string{"kind"},
	)

	m.StatusErrorsByCode = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pangolin_status_backend_errors_total",
			Help: "Total backend-reported status errors by code",
		},
		[]string{"code"},
	)

	m.PowerMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pangolin_power_mode",
			Help: "Current power mode (0 = normal, 1 = low)",
		},
	)

	m.registry.MustRegister(
		m.TunnelUp,
		m.StateTransitions,
		m.ActivationErrors,
		m.SettingsVersion,
		m.SettingsPolls,
		m.SettingsPollError,
		m.SettingsApplied,
		m.SettingsParseFail,
		m.HotSwaps,
		m.HotSwapFails,
		m.StatusPolls,
		m.StatusPollErrors,
		m.StatusErrorsByCode,
		m.PowerMode,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
