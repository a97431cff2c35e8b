package request

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

const (
	artifactSuffix = ".json"

	// DefaultWorkers is the default size of the icon encoding pool
	DefaultWorkers = 4
)

// Serializer turns approved updates into pending request files under one directory per app
type Serializer struct {
	dir     string
	workers int
	now     func() time.Time
}

// Option configures a Serializer
type Option func(*Serializer)

// WithWorkers sets the icon encoding concurrency
func WithWorkers(n int) Option {
	return func(s *Serializer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides the time source for CreatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) {
		s.now = now
	}
}

// NewSerializer creates a serializer writing under dir
func NewSerializer(dir string, opts ...Option) (*Serializer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create pending request directory: %w", err)
	}
	s := &Serializer{
		dir:     dir,
		workers: DefaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Serializer) appDir(appID string) string {
	return filepath.Join(s.dir, url.PathEscape(appID))
}

// NextPath returns a fresh artifact path for appID. Nothing is created on disk.
func (s *Serializer) NextPath(appID string) string {
	return filepath.Join(s.appDir(appID), uuid.NewString()+artifactSuffix)
}

// Write encodes in and stores it at path, then removes every other artifact of the app
// so at most one pending request is live.
func (s *Serializer) Write(ctx context.Context, path string, in Input) error {
	if in.App == nil {
		return errors.New("app is required")
	}

	req, err := s.build(ctx, in)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal pending request: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("failed to canonicalize pending request: %w", err)
	}
	if err := Validate(canonical); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create pending request directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, canonical, 0600); err != nil {
		return fmt.Errorf("failed to write pending request: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename pending request: %w", err)
	}

	s.pruneSiblings(path)
	return nil
}

func (s *Serializer) pruneSiblings(keep string) {
	dir := filepath.Dir(keep)
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("Failed to list pending requests", "dir", dir, "error", err)
		return
	}
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if entry.IsDir() || p == keep {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove superseded pending request", "path", p, "error", err)
		}
	}
}

func (s *Serializer) build(ctx context.Context, in Input) (*PendingUpdateRequest, error) {
	snapshot := in.App.Snapshot
	primaryURL, splashURL := snapshot.PrimaryIconURL, snapshot.SplashIconURL
	icons := in.App.Icons
	if in.Fetched != nil {
		snapshot = in.Fetched.Snapshot
		primaryURL, splashURL = in.Fetched.PrimaryIconURL, in.Fetched.SplashIconURL
		icons = in.Fetched.Icons
	}

	req := &PendingUpdateRequest{
		AppID:                   in.App.ID,
		PackageName:             in.App.PackageName,
		Snapshot:                snapshot,
		Reasons:                 in.Reasons,
		Stale:                   in.Fetched == nil,
		IdentityUpdatePermitted: in.IdentityUpdatePermitted,
		RuntimeVersion:          in.RuntimeVersion,
		CreatedAt:               s.now().UTC(),
	}
	if req.Reasons == nil {
		req.Reasons = []string{}
	}

	// Each task assigns a distinct slot
	shortcuts := make([]*EncodedIcon, len(snapshot.Shortcuts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	encodeInto := func(iconURL string, assign func(*EncodedIcon)) {
		data, ok := lookupIcon(icons, iconURL)
		if !ok {
			return
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			assign(encodeIcon(iconURL, data))
			return nil
		})
	}

	encodeInto(primaryURL, func(icon *EncodedIcon) { req.PrimaryIcon = icon })
	encodeInto(splashURL, func(icon *EncodedIcon) { req.SplashIcon = icon })
	for i, sc := range snapshot.Shortcuts {
		encodeInto(sc.IconURL, func(icon *EncodedIcon) { shortcuts[i] = icon })
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to encode icons: %w", err)
	}

	for _, icon := range shortcuts {
		if icon != nil {
			req.ShortcutIcons = append(req.ShortcutIcons, *icon)
		}
	}
	return req, nil
}

func lookupIcon(icons map[string][]byte, iconURL string) ([]byte, bool) {
	if iconURL == "" {
		return nil, false
	}
	if data, ok := icons[iconURL]; ok {
		return data, len(data) > 0
	}
	for u, data := range icons {
		if webapp.SameURL(u, iconURL) {
			return data, len(data) > 0
		}
	}
	return nil, false
}

func encodeIcon(iconURL string, data []byte) *EncodedIcon {
	sum := sha256.Sum256(data)
	return &EncodedIcon{
		URL:    iconURL,
		SHA256: hex.EncodeToString(sum[:]),
		Data:   base64.StdEncoding.EncodeToString(data),
	}
}

// Load reads the artifact at path
func Load(path string) (*PendingUpdateRequest, error) {
	// #nosec G304 -- path comes from the record written by this process
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to read pending request: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var req PendingUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode pending request: %w", err)
	}
	return &req, nil
}

// Delete removes the artifact at path and its app directory when empty. A missing file
// is not an error.
func Delete(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete pending request: %w", err)
	}
	// Only succeeds when the directory is empty
	_ = os.Remove(filepath.Dir(path))
	return nil
}

// DeleteApp removes every artifact of appID
func (s *Serializer) DeleteApp(appID string) error {
	if err := os.RemoveAll(s.appDir(appID)); err != nil {
		return fmt.Errorf("failed to delete pending requests of app '%s': %w", appID, err)
	}
	return nil
}
