package app

import (
	"context"

	"github.com/stacklok/pwa-update-manager/internal/coordinator"
	"github.com/stacklok/pwa-update-manager/internal/dialog"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
)

// BackgroundRunner runs until ctx is cancelled
type BackgroundRunner interface {
	Start(ctx context.Context) error
}

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator runs the per-app update cycles
	Coordinator *coordinator.Coordinator

	// Prompts holds identity update prompts until they are answered through the API
	Prompts *dialog.Queue

	// Device is the last reported device state, used by delivery job constraints
	Device *schedule.Device

	// Runner executes the delivery job (optional, nil without a delivery command)
	Runner BackgroundRunner

	// runOnce runs a due delivery job a single time
	runOnce func(ctx context.Context) (bool, error)
}
