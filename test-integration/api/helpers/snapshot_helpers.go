package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

// SnapshotServer mocks the manifest snapshot service queried by the fetcher
type SnapshotServer struct {
	server *httptest.Server

	mu       sync.Mutex
	snapshot *webapp.Fetched
	requests []string
}

// NewSnapshotServer starts a snapshot service that reports no manifest until one is set
func NewSnapshotServer() *SnapshotServer {
	s := &SnapshotServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshot)
	s.server = httptest.NewServer(mux)
	return s
}

func (s *SnapshotServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Query().Get("startUrl"))
	fetched := s.snapshot
	s.mu.Unlock()

	if fetched == nil {
		http.Error(w, "manifest not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fetched)
}

// SetSnapshot sets the manifest returned for every request. Nil reports no manifest.
func (s *SnapshotServer) SetSnapshot(fetched *webapp.Fetched) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = fetched
}

// Requests returns the start URLs of the requests served so far
func (s *SnapshotServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// URL returns the endpoint to configure as fetcher.endpoint
func (s *SnapshotServer) URL() string {
	return s.server.URL
}

// Close stops the server
func (s *SnapshotServer) Close() {
	s.server.Close()
}

// InstalledApp returns an installed app bound to the managed package prefix
func InstalledApp(id, runtimeVersion string) *webapp.App {
	return &webapp.App{
		ID:          id,
		PackageName: "org.chromium.webapk.integration",
		Snapshot: webapp.Snapshot{
			StartURL:       id,
			Scope:          id,
			ManifestURL:    id + "manifest.json",
			ManifestID:     id,
			Name:           "Integration App",
			ShortName:      "Integration",
			DisplayMode:    webapp.DisplayMode("standalone"),
			ThemeColor:     webapp.Colors{Light: "#000000"},
			RuntimeVersion: runtimeVersion,
		},
	}
}

// FetchedFor returns the manifest snapshot matching app's installed snapshot
func FetchedFor(app *webapp.App) *webapp.Fetched {
	snapshot := app.Snapshot
	snapshot.RuntimeVersion = ""
	return &webapp.Fetched{Snapshot: snapshot}
}
