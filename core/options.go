package core

import (
	"time"

	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/monitor"
)

// Option is a function that modifies worker configuration
type Option func(*Worker)

// WithPollInterval sets the baseline sleep between iterations
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.pollInterval = d
	}
}

// WithMaxBackoff caps the sleep interval after consecutive failures
func WithMaxBackoff(d time.Duration) Option {
	return func(w *Worker) {
		w.maxBackoff = d
	}
}

// WithDrainOnShutdown controls whether an in-flight job may finish and
// report when shutdown begins, or is failed with a shutdown reason
func WithDrainOnShutdown(drain bool) Option {
	return func(w *Worker) {
		w.drain = drain
	}
}

// WithClock replaces the wall clock, used by tests
func WithClock(c Clock) Option {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithMetrics attaches a metrics set; nil disables recording
func WithMetrics(m *monitor.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithGPUs sets the GPUs reported with the worker's capabilities
func WithGPUs(gpus []inventory.GPU) Option {
	return func(w *Worker) {
		w.gpus = gpus
	}
}
