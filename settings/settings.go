// Package settings persists and reconciles the worker's server-driven
// configuration. The store is the single source of truth between restarts.
package settings

import (
	"time"

	"github.com/anemone1693821/gpu-worker/schedule"
	"github.com/google/uuid"
)

// Settings is the full worker configuration as pushed by the dispatch
// server. It is only ever replaced wholesale, never field-patched, so a
// half-applied update can never be observed.
type Settings struct {
	// WorkerID is the stable worker instance id. It is generated once,
	// persisted, and owned by the worker; server syncs never overwrite it.
	WorkerID string `json:"worker_id"`

	// Version is the server's settings version. Syncs with an older or
	// equal version are ignored.
	Version int64 `json:"settings_version"`

	// EnabledModels restricts which discovered models are offered. A nil
	// list means no restriction; an empty non-nil list disables all models.
	EnabledModels []string `json:"enabled_models"`

	Schedule schedule.Schedule `json:"schedule"`

	LastSync time.Time `json:"last_sync,omitempty"`
}

// Sync is the settings envelope carried by poll responses and the
// fetch-settings endpoint.
type Sync struct {
	Version  int64     `json:"settings_version"`
	Settings *Settings `json:"settings"`
}

// Default returns the configuration a worker runs with before its first
// sync: a fresh identity, no model restriction, and an always-eligible
// schedule. Always-eligible is deliberate; a fresh worker should poll
// rather than sit silently idle.
func Default() Settings {
	return Settings{
		WorkerID: uuid.NewString(),
	}
}

// ModelEnabled reports whether a discovered model may be offered.
func (s Settings) ModelEnabled(name string) bool {
	if s.EnabledModels == nil {
		return true
	}
	for _, m := range s.EnabledModels {
		if m == name {
			return true
		}
	}
	return false
}
