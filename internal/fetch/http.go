package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/pwa-update-manager/internal/httpclient"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

const (
	snapshotPath = "/v1/snapshot"

	// DefaultMaxElapsed bounds retries of transient snapshot service errors
	DefaultMaxElapsed = 30 * time.Second
)

// HTTPFetcher asks a manifest snapshot service to load the app's page and report the
// manifest it declares. Transient failures are retried with exponential backoff.
type HTTPFetcher struct {
	endpoint        string
	client          httpclient.Client
	maxElapsed      time.Duration
	initialInterval time.Duration
}

// Option configures an HTTPFetcher
type Option func(*HTTPFetcher)

// WithMaxElapsed bounds the total retry time of one fetch
func WithMaxElapsed(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.maxElapsed = d
	}
}

// WithInitialInterval sets the first retry delay
func WithInitialInterval(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.initialInterval = d
	}
}

// NewHTTPFetcher creates a fetcher for the snapshot service at endpoint
func NewHTTPFetcher(endpoint string, client httpclient.Client, opts ...Option) (*HTTPFetcher, error) {
	if endpoint == "" {
		return nil, errors.New("snapshot service endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid snapshot service endpoint '%s': %w", endpoint, err)
	}
	f := &HTTPFetcher{
		endpoint:        strings.TrimSuffix(endpoint, "/"),
		client:          client,
		maxElapsed:      DefaultMaxElapsed,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *HTTPFetcher) snapshotURL(req Request) string {
	q := url.Values{}
	q.Set("startUrl", req.StartURL)
	q.Set("scope", req.Scope)
	q.Set("manifestUrl", req.ManifestURL)
	if req.ManifestID != "" {
		q.Set("manifestId", req.ManifestID)
	}
	return f.endpoint + snapshotPath + "?" + q.Encode()
}

// Start implements Fetcher
func (f *HTTPFetcher) Start(ctx context.Context, req Request) (Session, error) {
	if req.StartURL == "" {
		return nil, errors.New("start URL is required")
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &httpSession{
		results: make(chan *webapp.Fetched, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.results)

		fetched, err := f.fetch(sctx, req)
		if err != nil {
			if sctx.Err() == nil {
				slog.Warn("Manifest fetch failed", "app_id", req.AppID, "error", err)
			}
			return
		}
		select {
		case s.results <- fetched:
		case <-sctx.Done():
		}
	}()

	return s, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, req Request) (*webapp.Fetched, error) {
	target := f.snapshotURL(req)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.initialInterval

	operation := func() (*webapp.Fetched, error) {
		body, err := f.client.Get(ctx, target)
		if err != nil {
			if httpclient.IsNotFound(err) {
				return nil, backoff.Permanent(errNoManifest)
			}
			if ctx.Err() != nil || !httpclient.IsTransient(err) {
				return nil, backoff.Permanent(err)
			}
			if wait := httpclient.RetryAfter(err); wait > 0 {
				return nil, backoff.RetryAfter(int(wait.Round(time.Second) / time.Second))
			}
			return nil, err
		}
		var fetched webapp.Fetched
		if err := json.Unmarshal(body, &fetched); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode snapshot: %w", err))
		}
		return &fetched, nil
	}

	fetched, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxElapsedTime(f.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("Retrying manifest fetch", "app_id", req.AppID, "error", err, "retry_in", next)
		}),
	)
	if errors.Is(err, errNoManifest) {
		slog.Debug("Page declares no usable manifest", "app_id", req.AppID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

var errNoManifest = errors.New("no manifest")

type httpSession struct {
	results chan *webapp.Fetched
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *httpSession) Results() <-chan *webapp.Fetched {
	return s.results
}

// Close cancels the fetch and waits for its goroutine, so nothing is delivered afterwards
func (s *httpSession) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
