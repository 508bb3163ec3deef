// Package core runs the dispatch loop: it syncs settings, reports
// inventory, checks schedule eligibility, claims one job at a time, executes
// it against the local backend and reports the outcome. Iterations are
// strictly sequential; the only suspension points are the blocking client
// calls and the inter-iteration sleep.
package core

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/anemone1693821/gpu-worker/errors"
	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/monitor"
	"github.com/anemone1693821/gpu-worker/remote"
	"github.com/anemone1693821/gpu-worker/settings"
)

// Worker is the orchestrator tying the clients, the settings store and the
// inventory scanner together.
type Worker struct {
	remote  Remote
	backend Backend
	store   Store
	inv     Inventory
	clock   Clock
	metrics *monitor.Metrics

	hostname string
	gpus     []inventory.GPU

	pollInterval time.Duration
	maxBackoff   time.Duration
	drain        bool

	// failures counts consecutive failed iterations for backoff.
	failures uint
}

// New creates a worker with dependency injection
func New(rc Remote, bc Backend, store Store, inv Inventory, options ...Option) *Worker {
	hostname, _ := os.Hostname()

	w := &Worker{
		remote:       rc,
		backend:      bc,
		store:        store,
		inv:          inv,
		clock:        realClock{},
		hostname:     hostname,
		pollInterval: 5 * time.Second,
		maxBackoff:   60 * time.Second,
		drain:        true,
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// Run executes the dispatch loop until the context is cancelled or an
// authentication failure makes continuing pointless. A nil return means
// clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.store.Load(); err != nil {
		return errors.NewConfigError("settings", err)
	}

	st := w.store.Current()
	slog.Info("Worker started", "id", st.WorkerID, "gpus", len(w.gpus))

	// Initial settings fetch; best effort, the persisted copy already
	// applies until the server says otherwise.
	if sync, err := w.remote.FetchSettings(ctx); err != nil {
		if errors.IsAuth(err) {
			return err
		}
		slog.Warn("Initial settings fetch failed", "error", err)
	} else {
		w.applySync(sync)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Worker stopped")
			return nil
		default:
		}

		err := w.iterate(ctx)
		if errors.IsAuth(err) {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown raced an in-flight call; not a real failure.
				slog.Info("Worker stopped")
				return nil
			}
			w.metrics.PollError()
			slog.Error("Iteration failed", "error", err)
		}

		sleep := w.nextSleep(err)
		select {
		case <-ctx.Done():
			slog.Info("Worker stopped")
			return nil
		case <-w.clock.After(sleep):
		}
	}
}

// iterate runs one pass of the loop state machine:
// SyncSettings -> ScanInventory -> Register -> CheckEligibility -> PollJob
// -> Dispatch -> ReportResult. A nil return resets backoff.
func (w *Worker) iterate(ctx context.Context) error {
	models, err := w.inv.Scan()
	if err != nil {
		return err
	}

	st := w.store.Current()

	offered := models[:0:0]
	for _, m := range models {
		if st.ModelEnabled(m.Name) {
			offered = append(offered, m)
		}
	}

	caps := remote.Capabilities{
		WorkerID: st.WorkerID,
		Hostname: w.hostname,
		Models:   offered,
		GPUs:     w.gpus,
	}
	if err := w.remote.Register(ctx, caps); err != nil {
		return err
	}

	if !st.Schedule.Eligible(w.clock.Now()) {
		slog.Debug("Outside schedule, not polling")
		return nil
	}

	jb, sync, err := w.remote.PollJob(ctx)
	if err != nil {
		return err
	}

	w.applySync(sync)

	if jb == nil {
		return nil
	}

	return w.dispatch(ctx, jb)
}

// applySync reconciles a server-pushed settings envelope. A failed write
// keeps the last-known-good in-memory state and is logged, not fatal.
func (w *Worker) applySync(sync *settings.Sync) {
	applied, err := w.store.Apply(sync)
	if err != nil {
		slog.Warn("Could not persist synced settings", "error", err)
		return
	}
	if applied {
		w.metrics.SettingsSynced()
		slog.Info("Settings synced", "version", w.store.Current().Version)
	}
}

// nextSleep returns the inter-iteration sleep: the baseline when the
// iteration succeeded, otherwise baseline * 2^failures capped at the
// configured maximum.
func (w *Worker) nextSleep(iterErr error) time.Duration {
	if iterErr == nil {
		w.failures = 0
		w.metrics.SetBackoff(w.pollInterval)
		return w.pollInterval
	}

	w.failures++
	d := w.pollInterval
	for i := uint(0); i < w.failures; i++ {
		d *= 2
		if d >= w.maxBackoff {
			d = w.maxBackoff
			break
		}
	}

	w.metrics.SetBackoff(d)
	return d
}
