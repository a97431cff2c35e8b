package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/record"
)

// FileFactory creates storage components that keep app records as one JSON
// document per app under the data directory.
type FileFactory struct {
	artifacts

	mu         sync.Mutex
	repository *record.Repository
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory, ensuring the data
// directory exists.
func NewFileFactory(cfg *config.Config) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	baseDir := cfg.GetDataDir()
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", baseDir, err)
	}

	slog.Info("Creating file-based storage factory", "data_dir", baseDir)

	return &FileFactory{artifacts: artifacts{config: cfg}}, nil
}

// CreateRepository creates a repository over the file record store
func (f *FileFactory) CreateRepository(_ context.Context) (*record.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repository != nil {
		return f.repository, nil
	}

	slog.Debug("Creating file-based record store", "dir", f.config.GetRecordsDir())
	store, err := record.NewFileStore(f.config.GetRecordsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create file record store: %w", err)
	}
	f.repository = record.NewRepository(store)
	return f.repository, nil
}

// Cleanup releases resources held by the file factory.
// The file store holds no open handles between calls, so this only drops the repository.
func (f *FileFactory) Cleanup() {
	slog.Debug("Cleaning up file storage factory")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repository != nil {
		_ = f.repository.Close()
		f.repository = nil
	}
}
