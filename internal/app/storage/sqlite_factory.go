package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/record"
)

// SQLiteFactory creates storage components that keep app records in a sqlite
// database. Pending artifacts and the job slot stay on the filesystem.
type SQLiteFactory struct {
	artifacts

	mu         sync.Mutex
	repository *record.Repository
}

var _ Factory = (*SQLiteFactory)(nil)

// NewSQLiteFactory creates a new sqlite storage factory. The database is opened
// lazily by CreateRepository.
func NewSQLiteFactory(cfg *config.Config) (*SQLiteFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	dbDir := filepath.Dir(cfg.GetSQLitePath())
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	slog.Info("Creating sqlite storage factory", "path", cfg.GetSQLitePath(), "data_dir", cfg.GetDataDir())

	return &SQLiteFactory{artifacts: artifacts{config: cfg}}, nil
}

// CreateRepository opens the sqlite database and creates a repository over it
func (f *SQLiteFactory) CreateRepository(_ context.Context) (*record.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repository != nil {
		return f.repository, nil
	}

	store, err := record.NewSQLiteStore(f.config.GetSQLitePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite record store: %w", err)
	}
	f.repository = record.NewRepository(store)
	return f.repository, nil
}

// Cleanup closes the database handle
func (f *SQLiteFactory) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repository == nil {
		return
	}
	slog.Info("Closing sqlite record store")
	if err := f.repository.Close(); err != nil {
		slog.Error("Failed to close sqlite record store", "error", err)
	}
	f.repository = nil
}
