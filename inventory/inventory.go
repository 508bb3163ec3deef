// Package inventory discovers what this worker can serve: the model files in
// the local model directory and the GPUs available to run them.
package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"
)

// ModelExt is the file extension of servable model files.
const ModelExt = ".safetensors"

// DefaultService is the capability tag declared for discovered models.
const DefaultService = "sdxl"

// Model describes one servable model file. Descriptors are recomputed on
// every scan and replaced wholesale, never mutated.
type Model struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	Size    int64  `json:"size"`
	Hash    string `json:"hash,omitempty"`
}

// Scanner enumerates model files in a directory. Content hashes are cached
// keyed by path, size and mtime so unchanged multi-gigabyte files are not
// reread on every pass.
type Scanner struct {
	dir    string
	hashes *cache.Cache
}

// NewScanner creates a scanner for the given model directory.
func NewScanner(dir string) *Scanner {
	return &Scanner{
		dir:    dir,
		hashes: cache.New(cache.NoExpiration, 0),
	}
}

// Scan returns the current model set, sorted by name. A missing directory is
// an empty inventory, not an error; a worker with no local models is valid.
// Files that cannot be read are skipped with a warning.
func (s *Scanner) Scan() ([]Model, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}

	var models []Model
	// ReadDir returns entries sorted by name, which fixes the model order.
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ModelExt) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Warn("Skipping unreadable model file", "file", entry.Name(), "error", err)
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		hash, err := s.hashFile(path, info.Size(), info.ModTime().UnixNano())
		if err != nil {
			slog.Warn("Skipping unreadable model file", "file", entry.Name(), "error", err)
			continue
		}

		models = append(models, Model{
			Name:    strings.TrimSuffix(entry.Name(), ModelExt),
			Service: DefaultService,
			Size:    info.Size(),
			Hash:    hash,
		})
	}

	return models, nil
}

// hashFile returns the file's SHA-256, from cache when size and mtime are
// unchanged since the last scan.
func (s *Scanner) hashFile(path string, size, mtime int64) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", path, size, mtime)
	if cached, ok := s.hashes.Get(key); ok {
		return cached.(string), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	s.hashes.Set(key, sum, cache.NoExpiration)
	return sum, nil
}
