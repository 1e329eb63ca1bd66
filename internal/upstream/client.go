// Package upstream is the JSON-over-HTTP client shared by the embeddings
// providers and the cross-encoder client.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 512

// Client posts JSON requests to one upstream service.
type Client struct {
	name      string
	http      *http.Client
	transport *http.Transport
	headers   map[string]string
	retry     amerrors.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers[key] = value
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg amerrors.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a client. The timeout applies per attempt.
func New(name string, timeout time.Duration, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
	}
	c := &Client{
		name:      name,
		http:      &http.Client{Transport: transport, Timeout: timeout},
		transport: transport,
		headers:   map[string]string{},
		retry:     amerrors.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the upstream in errors and logs.
func (c *Client) Name() string {
	return c.name
}

// PostJSON sends in as JSON and decodes the response into out, retrying
// transport failures, 429 and 5xx answers.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return amerrors.InternalError("encode "+c.name+" request", err)
	}
	return amerrors.Retry(ctx, c.retry, func() error {
		return c.do(ctx, http.MethodPost, url, body, out)
	})
}

// Get issues a GET and decodes the JSON response into out. It is not retried.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return amerrors.InternalError("build "+c.name+" request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return StatusError(c.name, resp.StatusCode, string(snippet))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return amerrors.InternalError("decode "+c.name+" response", err)
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return amerrors.New(amerrors.ErrCodeNetworkTimeout, c.name+" request timed out", err)
	}
	return amerrors.NetworkError(c.name+" unavailable", err)
}

// StatusError maps a non-2xx answer to an error. 429 and 5xx are retryable.
func StatusError(name string, status int, body string) error {
	msg := fmt.Sprintf("%s returned status %d", name, status)
	if reason := strings.TrimSpace(body); reason != "" {
		msg += ": " + reason
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return amerrors.NetworkError(msg, errors.New(body)).WithDetail("status", fmt.Sprint(status))
	}
	return amerrors.New(amerrors.ErrCodeUpstreamStatus, msg, errors.New(body)).
		WithDetail("status", fmt.Sprint(status))
}

// Close releases idle connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}
