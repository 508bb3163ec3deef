// Package backend is a thin client for the local inference server. It
// carries no retry policy; that belongs to the dispatch loop.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/anemone1693821/gpu-worker/config"
	"github.com/anemone1693821/gpu-worker/errors"
	"github.com/anemone1693821/gpu-worker/job"
)

// Client submits generation requests to the local backend over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a backend client. Every Generate call is bounded by the
// configured backend timeout so a hung backend cannot stall the loop.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.BackendURL,
		httpc:   &http.Client{Timeout: cfg.BackendTimeout},
	}
}

// Defaults applied to generation parameters the payload leaves unset.
var paramDefaults = map[string]any{
	"prompt":          "",
	"negative_prompt": "",
	"width":           1024,
	"height":          1024,
	"steps":           20,
	"cfg_scale":       7.0,
	"seed":            -1,
	"sample_method":   "euler_a",
}

// generateResponse tolerates both response shapes the backend produces.
type generateResponse struct {
	Images []string `json:"images"`
	Image  string   `json:"image"`
	Seed   int64    `json:"seed"`
	Error  string   `json:"error"`
}

// Generate runs one generation request and blocks until the backend
// responds or the timeout elapses. Timeout and backend-down conditions come
// back as distinct error kinds for the loop's backoff policy.
func (c *Client) Generate(ctx context.Context, jb *job.Job) (*job.Result, error) {
	body, err := buildParams(jb.Params)
	if err != nil {
		return nil, errors.NewBackendError("generate", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewBackendError("generate", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.NewBackendError("generate", classify(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewBackendError("generate",
			fmt.Errorf("server error %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.NewBackendError("generate", err)
	}

	if out.Error != "" {
		return nil, errors.NewBackendError("generate", fmt.Errorf("%s", out.Error))
	}

	image := out.Image
	if len(out.Images) > 0 {
		image = out.Images[0]
	}
	if image == "" {
		return nil, errors.NewBackendError("generate", errors.ErrNoImage)
	}

	return &job.Result{Image: image, Seed: out.Seed}, nil
}

// buildParams merges the opaque job payload over the default parameters.
// The payload itself is passed through untouched; only absent keys are
// filled in.
func buildParams(raw json.RawMessage) ([]byte, error) {
	params := make(map[string]any, len(paramDefaults))
	for k, v := range paramDefaults {
		params[k] = v
	}

	if len(raw) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode job params: %w", err)
		}
		for k, v := range payload {
			params[k] = v
		}
	}

	return json.Marshal(params)
}

// classify maps transport failures onto the error taxonomy: a refused
// connection means the backend is down, a deadline means it timed out.
func classify(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
	}

	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", errors.ErrBackendDown, err)
	}

	return err
}
