// Package remote is the HTTP boundary to the control plane: polling for
// commands, acknowledging them, fetching execution config and pushing
// results. It owns the retry and backoff policy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coverbot-io/sandbox-runner/internal/command"
)

const (
	// DefaultPollTimeout bounds a single poll request. A poll timing out is
	// an expected "no work yet" outcome.
	DefaultPollTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds ack/result/config requests.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultMaxRetries is the retry budget for ack/result/config calls
	// (so 4 attempts in total).
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the first backoff delay; it doubles on each
	// subsequent attempt.
	DefaultRetryBaseDelay = time.Second

	maxErrorBodyBytes = 4 << 10
)

// Config holds everything the client needs, constructed once at startup and
// passed in explicitly.
type Config struct {
	BaseURL   string
	AuthToken string
	RunID     string
	Metadata  map[string]string

	PollTimeout    time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Client talks to the control plane. All methods are safe for concurrent
// use; command executions push results while the loop keeps polling.
type Client struct {
	cfg          Config
	metadataJSON string
	httpClient   *http.Client
	logger       *slog.Logger

	mu              sync.Mutex
	sandboxConfigID string
}

// NewClient builds a Client, applying defaults for unset tuning fields.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("remote: run id is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}

	meta, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("remote: cannot encode runner metadata: %w", err)
	}

	return &Client{
		cfg:          cfg,
		metadataJSON: string(meta),
		httpClient:   &http.Client{},
		logger:       logger,
	}, nil
}

// SandboxConfigID returns the sandbox config id learned from the last
// execution-config fetch, or empty.
func (c *Client) SandboxConfigID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sandboxConfigID
}

// Poll asks for pending commands. A request timeout returns an empty batch
// and no error. Poll is never retried; the dispatch loop simply polls again
// after its usual delay.
func (c *Client) Poll(ctx context.Context) ([]command.Command, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("runId", c.cfg.RunID)
	q.Set("testingSandboxConfigId", c.SandboxConfigID())
	q.Set("runnerMetadata", c.metadataJSON)

	var resp struct {
		Commands []command.Command `json:"commands"`
	}
	err := c.doJSON(reqCtx, http.MethodGet, "/poll-commands", q, nil, &resp)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// No work yet.
			return nil, nil
		}
		return nil, err
	}
	return resp.Commands, nil
}

// Ack acknowledges receipt of a command. Safe to call more than once for
// the same id; the control plane treats it as idempotent.
func (c *Client) Ack(ctx context.Context, commandID string) error {
	body := map[string]any{
		"runId":          c.cfg.RunID,
		"commandId":      commandID,
		"runnerMetadata": c.cfg.Metadata,
	}
	return c.withRetry(ctx, "ack-command", func(reqCtx context.Context) error {
		return c.doJSON(reqCtx, http.MethodPost, "/ack-command", nil, body, nil)
	})
}

// PushResult reports a finished command's outcome.
func (c *Client) PushResult(ctx context.Context, result command.Result) error {
	body := map[string]any{
		"runId":          c.cfg.RunID,
		"result":         result,
		"runnerMetadata": c.cfg.Metadata,
	}
	return c.withRetry(ctx, "command-result", func(reqCtx context.Context) error {
		return c.doJSON(reqCtx, http.MethodPost, "/command-result", nil, body, nil)
	})
}

// FetchExecutionConfig retrieves the server-side execution tuning. Callers
// treat a nil config as "no server opinion"; failures degrade to nil.
func (c *Client) FetchExecutionConfig(ctx context.Context) (*command.ExecutionConfig, error) {
	q := url.Values{}
	q.Set("runId", c.cfg.RunID)
	q.Set("runnerMetadata", c.metadataJSON)

	var resp struct {
		TestExecutionConfig    *command.ExecutionConfig `json:"testExecutionConfig"`
		TestingSandboxConfigID string                   `json:"testingSandboxConfigId"`
	}
	err := c.withRetry(ctx, "test-execution-config", func(reqCtx context.Context) error {
		return c.doJSON(reqCtx, http.MethodGet, "/test-execution-config", q, nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sandboxConfigID = resp.TestingSandboxConfigID
	c.mu.Unlock()
	return resp.TestExecutionConfig, nil
}

// withRetry runs fn with bounded retries and exponential backoff (base, 2x
// per attempt). Permanent failures propagate immediately; the parent
// context aborts the backoff wait.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var last error
	attempts := c.cfg.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		err := fn(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		if i == attempts-1 {
			break
		}
		delay := c.cfg.RetryBaseDelay << uint(i)
		c.logger.Warn("transient control plane failure, retrying",
			"op", op, "attempt", i+1, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, last)
}

// doJSON performs one bearer-authenticated JSON request and decodes the
// response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
