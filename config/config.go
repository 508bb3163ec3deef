// Package config holds the worker's startup configuration. The Config value
// is built once in main and passed into every component constructor; no
// component reads environment state on its own.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/anemone1693821/gpu-worker/errors"
)

// Config is the main configuration structure
type Config struct {
	// ServerURL is the base URL of the remote dispatch server.
	ServerURL string `json:"server_url"`
	// BackendURL is the base URL of the local inference server.
	BackendURL string `json:"backend_url"`
	// APIKey authenticates every dispatch-server call.
	APIKey string `json:"-"`

	// ModelDir is scanned read-only for model files.
	ModelDir string `json:"model_dir"`
	// DataDir holds the persisted settings file.
	DataDir string `json:"data_dir"`

	PollInterval   time.Duration `json:"poll_interval"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	BackendTimeout time.Duration `json:"backend_timeout"`
	RemoteTimeout  time.Duration `json:"remote_timeout"`

	// ReportRetries bounds extra attempts for a terminal result report.
	ReportRetries uint64 `json:"report_retries"`

	// DrainOnShutdown lets an in-flight job finish and report before exit.
	DrainOnShutdown bool `json:"drain_on_shutdown"`

	// MonitorAddr enables the metrics listener when non-empty.
	MonitorAddr string `json:"monitor_addr"`

	LogLevel string `json:"log_level"`
}

// Default returns default configuration
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		ServerURL:       "https://gitart.me",
		BackendURL:      "http://localhost:7860",
		ModelDir:        "/models/sd",
		DataDir:         filepath.Join(home, ".gpu-worker"),
		PollInterval:    5 * time.Second,
		MaxBackoff:      60 * time.Second,
		BackendTimeout:  5 * time.Minute,
		RemoteTimeout:   30 * time.Second,
		ReportRetries:   4,
		DrainOnShutdown: true,
		LogLevel:        "info",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.NewConfigError("api-key", fmt.Errorf("an API key is required"))
	}

	for field, raw := range map[string]string{
		"server-url":  c.ServerURL,
		"backend-url": c.BackendURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.NewConfigError(field, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.NewConfigError(field, fmt.Errorf("unsupported scheme %q", u.Scheme))
		}
	}

	if c.ModelDir == "" {
		return errors.NewConfigError("model-dir", fmt.Errorf("model directory is required"))
	}

	if c.DataDir == "" {
		return errors.NewConfigError("data-dir", fmt.Errorf("data directory is required"))
	}

	if c.PollInterval <= 0 {
		return errors.NewConfigError("poll-interval", fmt.Errorf("must be positive"))
	}

	if c.MaxBackoff < c.PollInterval {
		return errors.NewConfigError("max-backoff", fmt.Errorf("must be at least the poll interval"))
	}

	if c.BackendTimeout <= 0 {
		return errors.NewConfigError("backend-timeout", fmt.Errorf("must be positive"))
	}

	if c.RemoteTimeout <= 0 {
		return errors.NewConfigError("remote-timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

// SettingsPath returns the location of the persisted settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}
