package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pwaapp "github.com/stacklok/pwa-update-manager/internal/app"
	"github.com/stacklok/pwa-update-manager/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the update manager service",
		Long: `Start the update manager service: the REST API that receives app activations,
prompt decisions and delivery results, the update coordinator, and the delivery job runner.

The service requires a configuration file (--config). See examples/ for a sample.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	if err := v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	opts := []pwaapp.UpdateAppOptions{
		pwaapp.WithConfig(cfg),
		pwaapp.WithAddress(v.GetString("address")),
		pwaapp.WithMeterProvider(tel.MeterProvider()),
		pwaapp.WithTracerProvider(tel.TracerProvider()),
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, pwaapp.WithMetricsHandler(h))
	}

	updateApp, err := pwaapp.NewUpdateApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create update app: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- updateApp.Start()
	}()

	var startErr error
	select {
	case startErr = <-errCh:
	case <-sigCtx.Done():
	}

	stopErr := updateApp.Stop(defaultGracefulTimeout)
	return errors.Join(startErr, stopErr)
}
