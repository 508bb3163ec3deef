package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Store owns the durable copy of Settings. It is only ever touched from the
// dispatch loop, so it carries no lock; the in-memory copy is updated only
// after a write has fully succeeded.
type Store struct {
	path    string
	current Settings
	loaded  bool
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the last-persisted settings, falling back to Default when no
// file exists or the file does not parse. A file that exists but cannot be
// read is an error; at startup that is fatal.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Settings{}, fmt.Errorf("read settings %s: %w", s.path, err)
		}
		return s.reset(), nil
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		slog.Warn("Settings file is corrupt, using defaults", "path", s.path, "error", err)
		return s.reset(), nil
	}

	if loaded.WorkerID == "" {
		// Settings written before an identity existed; mint one now.
		loaded.WorkerID = Default().WorkerID
	}

	s.current = loaded
	s.loaded = true
	return s.current, nil
}

// reset installs defaults and persists them best-effort so the worker
// identity survives restarts.
func (s *Store) reset() Settings {
	s.current = Default()
	s.loaded = true
	if err := s.Replace(s.current); err != nil {
		slog.Warn("Could not persist default settings", "error", err)
	}
	return s.current
}

// Current returns the in-memory settings. Load must have been called first.
func (s *Store) Current() Settings {
	if !s.loaded {
		return Default()
	}
	return s.current
}

// Replace atomically writes the full new state to disk and swaps the
// in-memory copy only once the write has succeeded. A failed write leaves
// the previous state intact.
func (s *Store) Replace(next Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	if err := writeFileAtomic(s.path, next); err != nil {
		return err
	}

	s.current = next
	s.loaded = true
	return nil
}

// Apply reconciles a server-pushed sync envelope. Only a strictly newer
// version is applied, and always as a wholesale replacement. The worker
// identity is preserved across syncs. Returns whether a replacement
// happened.
func (s *Store) Apply(sync *Sync) (bool, error) {
	if sync == nil || sync.Settings == nil {
		return false, nil
	}
	if sync.Version <= s.Current().Version {
		return false, nil
	}

	next := *sync.Settings
	next.Version = sync.Version
	next.WorkerID = s.Current().WorkerID
	next.LastSync = time.Now().UTC()

	if err := s.Replace(next); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileAtomic writes settings to a temp file in the target directory,
// flushes it, and renames it over the destination.
func writeFileAtomic(path string, value Settings) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
