// Package monitor exposes optional Prometheus metrics for the worker. All
// record methods are nil-safe so callers never need to guard on whether
// monitoring is enabled.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the worker's counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	pollErrors    prometheus.Counter
	settingsSyncs prometheus.Counter
	backoff       prometheus.Gauge
}

// New creates a metrics set on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gpu_worker_jobs_completed_total",
			Help: "Jobs completed and reported successfully.",
		}),
		jobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gpu_worker_jobs_failed_total",
			Help: "Jobs reported as failed.",
		}),
		pollErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "gpu_worker_poll_errors_total",
			Help: "Failed control-plane iterations.",
		}),
		settingsSyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "gpu_worker_settings_syncs_total",
			Help: "Server-pushed settings replacements applied.",
		}),
		backoff: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_worker_backoff_seconds",
			Help: "Current sleep interval between iterations.",
		}),
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m *Metrics) JobCompleted() {
	if m == nil {
		return
	}
	m.jobsCompleted.Inc()
}

func (m *Metrics) JobFailed() {
	if m == nil {
		return
	}
	m.jobsFailed.Inc()
}

func (m *Metrics) PollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

func (m *Metrics) SettingsSynced() {
	if m == nil {
		return
	}
	m.settingsSyncs.Inc()
}

func (m *Metrics) SetBackoff(d time.Duration) {
	if m == nil {
		return
	}
	m.backoff.Set(d.Seconds())
}
