package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anemone1693821/gpu-worker/errors"
	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/job"
)

// dispatch executes one claimed job against the backend and reports the
// terminal outcome. Failures local to the job never escalate past the
// Failed report; a down backend additionally slows the loop down.
func (w *Worker) dispatch(ctx context.Context, jb *job.Job) error {
	jb.ClaimedAt = w.clock.Now()
	if err := jb.Transition(job.StateClaimed); err != nil {
		return err
	}

	slog.Info("Processing job", "id", jb.ID, "service", jb.Service)

	outcome, genErr := w.execute(ctx, jb)

	reportCtx := ctx
	if ctx.Err() != nil {
		// Shutdown began mid-job; the terminal report still has to go out
		// or the server strands the job as claimed.
		reportCtx = context.WithoutCancel(ctx)
	}

	if err := w.remote.ReportResult(reportCtx, jb.ID, outcome); err != nil {
		if errors.IsAuth(err) {
			return err
		}
		slog.Error("Failed to report job outcome, discarding job", "id", jb.ID, "error", err)
		return err
	}

	if outcome.Failed() {
		w.metrics.JobFailed()
	} else {
		w.metrics.JobCompleted()
	}

	// The job itself is done either way, but a dead backend means polling
	// for more work is pointless until it recovers.
	if errors.IsBackendDown(genErr) {
		return genErr
	}
	return nil
}

// execute runs the generation and builds the terminal outcome. The returned
// error describes the backend failure, if any; it is already reflected in
// the outcome.
func (w *Worker) execute(ctx context.Context, jb *job.Job) (job.Outcome, error) {
	if jb.Service != "" && jb.Service != inventory.DefaultService {
		err := fmt.Errorf("unsupported service: %s", jb.Service)
		_ = jb.Transition(job.StateFailed)
		slog.Error("Job failed", "id", jb.ID, "error", err)
		return job.Failure(err.Error()), nil
	}

	_ = jb.Transition(job.StateDispatched)

	genCtx := ctx
	if w.drain {
		// Let an in-flight generation finish even when shutdown begins;
		// the backend client's own timeout still bounds it.
		genCtx = context.WithoutCancel(ctx)
	}

	start := w.clock.Now()
	res, err := w.backend.Generate(genCtx, jb)
	elapsed := w.clock.Now().Sub(start)

	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil && !w.drain {
			reason = errors.ErrShutdown.Error()
		}
		_ = jb.Transition(job.StateFailed)
		slog.Error("Job failed", "id", jb.ID, "error", err, "duration", elapsed)
		return job.Failure(reason), err
	}

	res.InferenceTime = elapsed.Seconds()
	_ = jb.Transition(job.StateCompleted)
	slog.Info("Job completed", "id", jb.ID, "duration", elapsed)
	return job.Success(res), nil
}
