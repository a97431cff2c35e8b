// Package app provides application lifecycle management for the update manager.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/pwa-update-manager/internal/config"
)

// UpdateApp encapsulates all components needed to run the update manager service.
// It provides lifecycle management and graceful shutdown capabilities
type UpdateApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server
	cleanup    func()

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	runnerWG   sync.WaitGroup
}

// Start starts the application components (HTTP server and delivery job runner).
// This method blocks until the HTTP server stops or encounters an error
func (app *UpdateApp) Start() error {
	if app.components.Runner != nil {
		app.runnerWG.Add(1)
		go func() {
			defer app.runnerWG.Done()
			if err := app.components.Runner.Start(app.ctx); err != nil {
				slog.Error("Delivery job runner failed", "error", err)
			}
		}()
	}

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the delivery runner and the in-flight update cycles before shutting down
// the HTTP server and releasing storage.
func (app *UpdateApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	app.runnerWG.Wait()

	if app.components != nil && app.components.Coordinator != nil {
		app.components.Coordinator.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)

	if app.cleanup != nil {
		app.cleanup()
	}
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *UpdateApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *UpdateApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the application components
func (app *UpdateApp) GetComponents() *AppComponents {
	return app.components
}
