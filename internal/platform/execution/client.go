// Package execution provides the HTTP client for the external execution
// engine: it starts asynchronous executions and fetches persisted results.
// Completion events flow back through the server's callback endpoint, not
// through this client.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeworks/genbatch/internal/config"
	"github.com/forgeworks/genbatch/internal/engine"
)

// maxResponseBytes caps how much of an executor response is read. Result
// payloads are generation outputs, not media, so this is generous.
const maxResponseBytes = 4 << 20

// Client talks to the execution engine over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an execution engine client from configuration.
func NewClient(cfg config.ExecutorConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "execution_client"),
	}
}

// startRequest is the body of POST {base}/executions.
type startRequest struct {
	ExecutionID string          `json:"execution_id"`
	Dispatch    engine.Dispatch `json:"dispatch"`
}

// startResponse carries the executor's reference for the accepted execution.
type startResponse struct {
	ExternalRef string `json:"external_ref"`
}

// StartExecution triggers an asynchronous execution and returns the
// executor's reference for it. A non-2xx response is a synchronous
// rejection; the caller routes it into the retry policy.
func (c *Client) StartExecution(ctx context.Context, executionID string, dispatch engine.Dispatch) (string, error) {
	body, err := json.Marshal(startRequest{ExecutionID: executionID, Dispatch: dispatch})
	if err != nil {
		return "", fmt.Errorf("failed to encode dispatch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/executions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execution start request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("executor rejected dispatch",
			"execution_id", executionID,
			"status", resp.StatusCode)
		return "", fmt.Errorf("executor rejected dispatch: status %d", resp.StatusCode)
	}

	var out startResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode start response: %w", err)
	}
	if out.ExternalRef == "" {
		return "", fmt.Errorf("executor returned empty external reference")
	}
	return out.ExternalRef, nil
}

// GetResult fetches the persisted result payload by its reference.
func (c *Client) GetResult(ctx context.Context, resultRef string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/results/"+resultRef, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build result request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("result fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("result fetch for %s: status %d", resultRef, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read result payload: %w", err)
	}
	return payload, nil
}

var _ engine.ExecutionEngine = (*Client)(nil)
