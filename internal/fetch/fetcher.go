// Package fetch obtains the current manifest snapshot of an installed app.
package fetch

import (
	"context"

	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=fetcher.go Fetcher,Session

// Request identifies the page whose manifest should be fetched
type Request struct {
	AppID       string
	StartURL    string
	Scope       string
	ManifestURL string
	ManifestID  string
}

// Fetcher starts manifest fetches
type Fetcher interface {
	// Start begins an asynchronous fetch. The fetch is not bound to ctx's cancellation;
	// it ends when it completes or the session is closed.
	Start(ctx context.Context, req Request) (Session, error)
}

// Session is one in-flight fetch
type Session interface {
	// Results delivers at most one value and is then closed. A nil value, or a close
	// without a value, means no manifest could be obtained.
	Results() <-chan *webapp.Fetched

	// Close abandons the fetch. No result is delivered after Close returns.
	Close()
}
