// Package storage provides factory functions for creating storage-dependent components.
// It implements the Abstract Factory pattern so that the app record repository, the
// pending request serializer and the delivery job store share one data directory.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/record"
	"github.com/stacklok/pwa-update-manager/internal/request"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - Repository: per-app update records
// - Serializer: pending update request artifacts
// - FileStore: the delivery job slot
//
// It also manages the lifecycle of storage resources (e.g., database handles).
type Factory interface {
	// CreateRepository creates the app record repository.
	// Repeated calls return the same repository.
	CreateRepository(ctx context.Context) (*record.Repository, error)

	// CreateSerializer creates the pending update request serializer.
	CreateSerializer(ctx context.Context) (*request.Serializer, error)

	// CreateJobStore creates the store of the delivery job slot.
	CreateJobStore(ctx context.Context) (*schedule.FileStore, error)

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
// Returns a FileFactory for file-based records or a SQLiteFactory for sqlite records.
func NewStorageFactory(cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeSQLite:
		return NewSQLiteFactory(cfg)
	case config.StorageTypeFile:
		return NewFileFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}

// artifacts creates the file-backed components both factories share
type artifacts struct {
	config *config.Config
}

func (a artifacts) CreateSerializer(_ context.Context) (*request.Serializer, error) {
	return request.NewSerializer(a.config.GetPendingDir(), request.WithWorkers(a.config.Serializer.GetWorkers()))
}

func (a artifacts) CreateJobStore(_ context.Context) (*schedule.FileStore, error) {
	return schedule.NewFileStore(a.config.GetJobsDir())
}
