package config

import (
	"testing"
	"time"

	"github.com/anemone1693821/gpu-worker/errors"
	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := Default()
	cfg.APIKey = "test-key"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := Default()

	err := cfg.Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "api-key")
}

func TestValidate_BadScheme(t *testing.T) {
	cfg := validConfig()
	cfg.ServerURL = "ftp://example.com"

	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)
}

func TestValidate_BackoffBelowInterval(t *testing.T) {
	cfg := validConfig()
	cfg.PollInterval = 10 * time.Second
	cfg.MaxBackoff = 5 * time.Second

	err := cfg.Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max-backoff")
}

func TestValidate_NonPositiveInterval(t *testing.T) {
	cfg := validConfig()
	cfg.PollInterval = 0

	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)
}

func TestSettingsPath(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = "/var/lib/gpu-worker"

	assert.Equal(t, "/var/lib/gpu-worker/settings.json", cfg.SettingsPath())
}
