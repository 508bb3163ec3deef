package core

import (
	"context"
	"time"

	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/job"
	"github.com/anemone1693821/gpu-worker/remote"
	"github.com/anemone1693821/gpu-worker/settings"
)

// Remote interface defines what the loop needs from the dispatch server
type Remote interface {
	// Register announces identity and capabilities; idempotent.
	Register(ctx context.Context, caps remote.Capabilities) error

	// PollJob returns one claimable job, or nil when none is available.
	PollJob(ctx context.Context) (*job.Job, *settings.Sync, error)

	// ReportResult sends a terminal outcome exactly once per job.
	ReportResult(ctx context.Context, jobID string, outcome job.Outcome) error

	// FetchSettings retrieves the current settings envelope.
	FetchSettings(ctx context.Context) (*settings.Sync, error)
}

// Backend interface defines what the loop needs from the local inference server
type Backend interface {
	Generate(ctx context.Context, jb *job.Job) (*job.Result, error)
}

// Inventory interface defines what the loop needs from the model scanner
type Inventory interface {
	Scan() ([]inventory.Model, error)
}

// Store interface defines what the loop needs from the settings store
type Store interface {
	Load() (settings.Settings, error)
	Current() settings.Settings
	Apply(sync *settings.Sync) (bool, error)
}

// Clock abstracts time so tests can drive the loop without real sleeps
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
