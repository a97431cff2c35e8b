// Package httpclient provides the HTTP client used to reach the manifest snapshot service
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stacklok/pwa-update-manager/internal/versions"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize bounds response bodies; snapshots embed icon payloads (32MB)
	MaxResponseSize = 32 * 1024 * 1024
)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client    *http.Client
	userAgent string
}

// NewDefaultClient creates a client with the given timeout; 0 means DefaultTimeout
func NewDefaultClient(timeout time.Duration) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: "pwa-updater/" + versions.Version,
	}
}

// Get fetches url as JSON. Any status other than 200 yields an *HTTPError carrying the
// server's Retry-After hint.
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		// drain so the connection returns to the pool
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Message:    resp.Status,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return readLimited(resp)
}

func readLimited(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("snapshot of %d bytes exceeds the %d byte limit", resp.ContentLength, MaxResponseSize)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("snapshot exceeds the %d byte limit", MaxResponseSize)
	}
	return body, nil
}
