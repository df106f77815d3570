// Package client talks to a running flowguard server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/telemetry"
)

const (
	maxRetries     = 3
	maxErrorBody   = 512
	defaultTimeout = 30 * time.Second
)

// Client is an HTTP client for the flowguard API with retry on 429 and 5xx.
type Client struct {
	baseURL    string
	token      string
	backoff    time.Duration
	httpClient *http.Client
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Message    string // server's "error" field when present
	Body       string // first 512 bytes
	retryAfter string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithToken sends a Bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithBackoff sets the first 5xx retry delay. Later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		backoff: time.Second,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: telemetry.Transport(nil),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict posts a raw feature payload to /predict.
func (c *Client) Predict(ctx context.Context, payload map[string]any) (model.Prediction, error) {
	var p model.Prediction
	err := c.do(ctx, http.MethodPost, "/predict", payload, &p)
	return p, err
}

// Metadata fetches /metadata.
func (c *Client) Metadata(ctx context.Context) (dataset.Metadata, error) {
	var m dataset.Metadata
	err := c.do(ctx, http.MethodGet, "/metadata", nil, &m)
	return m, err
}

// AnalyzeLive triggers a capture on the server.
func (c *Client) AnalyzeLive(ctx context.Context) (model.Prediction, error) {
	var p model.Prediction
	err := c.do(ctx, http.MethodPost, "/analyze_live", nil, &p)
	return p, err
}

// do sends one request, retrying on 429 (honouring Retry-After) and 5xx
// with exponential backoff, and decodes a 2xx JSON body into dest.
func (c *Client) do(ctx context.Context, method, path string, in, dest any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("client: encode: %w", err)
		}
	}

	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.delay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(data, dest); err != nil {
				return fmt.Errorf("client: decode %s: %w", path, err)
			}
			return nil
		}

		apiErr := newAPIError(resp.StatusCode, data)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
		case resp.StatusCode >= 500:
			lastErr = apiErr
		default:
			return apiErr
		}
	}
	return lastErr
}

func newAPIError(status int, data []byte) *APIError {
	body := string(data)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	e := &APIError{StatusCode: status, Body: body}
	var msg struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &msg) == nil {
		e.Message = msg.Error
	}
	return e
}

func (c *Client) delay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoff << (attempt - 1)
}
