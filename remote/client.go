// Package remote is the client for the dispatch server: capability
// registration, job polling, result reporting and settings fetches. The
// server arbitrates which worker gets a job; a poll that comes back empty
// or already-claimed is a normal outcome here, never an error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anemone1693821/gpu-worker/config"
	"github.com/anemone1693821/gpu-worker/errors"
	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/job"
	"github.com/anemone1693821/gpu-worker/settings"
	"github.com/cenkalti/backoff/v4"
)

// Capabilities is what the worker announces at registration: its identity
// and the models and GPUs it can currently serve.
type Capabilities struct {
	WorkerID string            `json:"worker_id"`
	Hostname string            `json:"hostname"`
	Models   []inventory.Model `json:"models"`
	GPUs     []inventory.GPU   `json:"gpus,omitempty"`
}

// pollResponse is the poll envelope. Unknown extra fields are tolerated for
// forward compatibility.
type pollResponse struct {
	Job        *job.Job       `json:"job"`
	ConfigSync *settings.Sync `json:"config_sync"`
}

// Client talks to the dispatch server with bearer-token authentication.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	retries uint64

	// newBackOff builds the retry schedule for result reports; replaced in
	// tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// NewClient creates a dispatch-server client.
func NewClient(cfg *config.Config) *Client {
	retries := cfg.ReportRetries
	return &Client{
		baseURL: cfg.ServerURL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: cfg.RemoteTimeout},
		retries: retries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 0
			return backoff.WithMaxRetries(b, retries)
		},
	}
}

// Register announces the worker's identity and capabilities. It is
// idempotent and safe to call on every loop iteration.
func (c *Client) Register(ctx context.Context, caps Capabilities) error {
	resp, err := c.do(ctx, http.MethodPost, "/worker/register", caps)
	if err != nil {
		return errors.NewRemoteError("register", 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return errors.NewRemoteError("register", resp.StatusCode, errors.ErrAuth)
	default:
		return errors.NewRemoteError("register", resp.StatusCode,
			fmt.Errorf("unexpected status"))
	}
}

// PollJob asks for one claimable job. A nil job with nil error means none
// was available, including the case where another worker claimed it first.
// The settings sync envelope, when present, rides along.
func (c *Client) PollJob(ctx context.Context) (*job.Job, *settings.Sync, error) {
	resp, err := c.do(ctx, http.MethodGet, "/worker/jobs/poll", nil)
	if err != nil {
		return nil, nil, errors.NewRemoteError("poll", 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusConflict:
		// Nothing available, or claimed elsewhere first.
		return nil, nil, nil
	case http.StatusUnauthorized:
		return nil, nil, errors.NewRemoteError("poll", resp.StatusCode, errors.ErrAuth)
	default:
		return nil, nil, errors.NewRemoteError("poll", resp.StatusCode,
			fmt.Errorf("unexpected status"))
	}

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, errors.NewRemoteError("poll", resp.StatusCode, err)
	}

	if out.Job != nil && out.Job.ID == "" {
		return nil, nil, errors.NewRemoteError("poll", resp.StatusCode,
			fmt.Errorf("job id: %w", errors.ErrMissingField))
	}

	return out.Job, out.ConfigSync, nil
}

// ReportResult sends the terminal outcome for a job. Transient failures are
// retried with exponential backoff up to the configured bound, because a
// lost report strands the job as claimed on the server. Authentication
// failures are never retried.
func (c *Client) ReportResult(ctx context.Context, jobID string, outcome job.Outcome) error {
	path := fmt.Sprintf("/worker/jobs/%s/complete", jobID)

	attempt := 0
	op := func() error {
		attempt++
		err := c.reportOnce(ctx, path, outcome)
		if err == nil {
			return nil
		}
		if !errors.IsTemporary(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("Result report failed, will retry", "job", jobID, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

func (c *Client) reportOnce(ctx context.Context, path string, outcome job.Outcome) error {
	resp, err := c.do(ctx, http.MethodPost, path, outcome)
	if err != nil {
		return errors.NewRemoteError("report", 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return errors.NewRemoteError("report", resp.StatusCode, errors.ErrAuth)
	default:
		return errors.NewRemoteError("report", resp.StatusCode,
			fmt.Errorf("unexpected status"))
	}
}

// FetchSettings retrieves the current settings envelope.
func (c *Client) FetchSettings(ctx context.Context) (*settings.Sync, error) {
	resp, err := c.do(ctx, http.MethodGet, "/worker/settings", nil)
	if err != nil {
		return nil, errors.NewRemoteError("fetch settings", 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusUnauthorized:
		return nil, errors.NewRemoteError("fetch settings", resp.StatusCode, errors.ErrAuth)
	default:
		return nil, errors.NewRemoteError("fetch settings", resp.StatusCode,
			fmt.Errorf("unexpected status"))
	}

	var sync settings.Sync
	if err := json.NewDecoder(resp.Body).Decode(&sync); err != nil {
		return nil, errors.NewRemoteError("fetch settings", resp.StatusCode, err)
	}
	return &sync, nil
}

// do issues one authenticated request.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpc.Do(req)
}
