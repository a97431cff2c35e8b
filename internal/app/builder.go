package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pwa-update-manager/internal/api"
	"github.com/stacklok/pwa-update-manager/internal/app/storage"
	"github.com/stacklok/pwa-update-manager/internal/approval"
	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/coordinator"
	"github.com/stacklok/pwa-update-manager/internal/delivery"
	"github.com/stacklok/pwa-update-manager/internal/dialog"
	"github.com/stacklok/pwa-update-manager/internal/fetch"
	"github.com/stacklok/pwa-update-manager/internal/httpclient"
	"github.com/stacklok/pwa-update-manager/internal/reasons"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
	"github.com/stacklok/pwa-update-manager/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// UpdateAppOptions is a function that configures the update app builder
type UpdateAppOptions func(*updateAppConfig) error

// updateAppConfig holds everything needed to build an UpdateApp.
// It supports dependency injection for testing while providing sensible defaults for production
type updateAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	fetcher        fetch.Fetcher
	deliverer      delivery.Deliverer
	deviceState    schedule.DeviceState

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...UpdateAppOptions) (*updateAppConfig, error) {
	cfg := &updateAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	return cfg, nil
}

// NewUpdateApp creates the update manager service from the given options
func NewUpdateApp(
	ctx context.Context,
	opts ...UpdateAppOptions,
) (*UpdateApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, cleanup, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		components.Coordinator.Close()
		cleanup()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &UpdateApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		cleanup:    cleanup,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// RunDelivery runs the delivery job once if it is due, in its own process lifetime.
// It reports whether the job ran.
func RunDelivery(ctx context.Context, opts ...UpdateAppOptions) (bool, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return false, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, cleanup, err := buildComponents(ctx, cfg)
	if err != nil {
		return false, err
	}
	defer cleanup()
	defer components.Coordinator.Close()

	if components.runOnce == nil {
		return false, fmt.Errorf("delivery.command is required to run deliveries")
	}
	return components.runOnce(ctx)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithFetcher allows injecting a manifest fetcher instead of the snapshot service client
func WithFetcher(f fetch.Fetcher) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithDeliverer allows injecting a deliverer instead of the configured command
func WithDeliverer(d delivery.Deliverer) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.deliverer = d
		return nil
	}
}

// WithDeviceState sets the initial device state seen by delivery job constraints
func WithDeviceState(state schedule.DeviceState) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.deviceState = state
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for update and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for update cycle spans
func WithTracerProvider(tp trace.TracerProvider) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves the given Prometheus handler at /metrics
func WithMetricsHandler(h http.Handler) UpdateAppOptions {
	return func(cfg *updateAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildComponents builds storage, the update pipeline and the delivery job runner.
// The returned cleanup releases storage and must run after the coordinator is closed.
func buildComponents(ctx context.Context, b *updateAppConfig) (*AppComponents, func(), error) {
	slog.Info("Initializing update components")

	// Create storage factory (single decision point for file vs sqlite)
	if b.storageFactory == nil {
		factory, err := storage.NewStorageFactory(b.config)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
		b.storageFactory = factory
	}
	cleanup := sync.OnceFunc(b.storageFactory.Cleanup)

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cleanup()
		}
	}()

	records, err := b.storageFactory.CreateRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create record repository: %w", err)
	}
	serializer, err := b.storageFactory.CreateSerializer(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request serializer: %w", err)
	}
	jobs, err := b.storageFactory.CreateJobStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create job store: %w", err)
	}

	cfg := b.config
	gate, err := approval.NewGate(records, approval.Policy{
		NameEnabled:          cfg.IdentityDialogs.GetNameEnabled(),
		IconEnabled:          cfg.IdentityDialogs.GetIconEnabled(),
		PlatformVersion:      cfg.IdentityDialogs.PlatformVersion,
		SilentIconConstraint: cfg.IdentityDialogs.SilentIconUpdatePlatforms,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create approval gate: %w", err)
	}

	engine := reasons.NewEngine(cfg.Update.TargetRuntimeVersion,
		reasons.WithPlatformSupportsMaskable(cfg.Update.GetPlatformSupportsMaskable()),
		reasons.WithOldShellMaxAge(cfg.Update.GetOldShellMaxAge()),
	)

	if b.fetcher == nil {
		b.fetcher, err = fetch.NewHTTPFetcher(cfg.Fetcher.Endpoint,
			httpclient.NewDefaultClient(cfg.Fetcher.GetTimeout()),
			fetch.WithMaxElapsed(cfg.Update.GetFetchTimeout()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create manifest fetcher: %w", err)
		}
	}

	metrics, err := telemetry.NewUpdateMetrics(b.meterProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create update metrics: %w", err)
	}
	if metrics != nil {
		slog.Info("Update metrics enabled")
	}

	prompts := dialog.NewQueue()
	device := &schedule.Device{}
	device.Set(b.deviceState)

	coord, err := coordinator.New(cfg,
		coordinator.WithRecords(records),
		coordinator.WithEngine(engine),
		coordinator.WithGate(gate),
		coordinator.WithFetcher(b.fetcher),
		coordinator.WithSerializer(serializer),
		coordinator.WithScheduler(jobs),
		coordinator.WithDialog(prompts),
		coordinator.WithMetrics(metrics),
		coordinator.WithTracerProvider(b.tracerProvider),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	components := &AppComponents{
		Coordinator: coord,
		Prompts:     prompts,
		Device:      device,
	}

	if b.deliverer == nil && len(cfg.Delivery.Command) > 0 {
		b.deliverer, err = delivery.NewCommandDeliverer(cfg.Delivery.Command, cfg.Delivery.GetTimeout())
		if err != nil {
			coord.Close()
			return nil, nil, fmt.Errorf("failed to create deliverer: %w", err)
		}
	}
	if b.deliverer != nil {
		runner := schedule.NewRunner(jobs, delivery.NewBatchTask(records, b.deliverer, coord), device,
			schedule.WithJobID(cfg.Scheduler.GetJobID()),
			schedule.WithPollInterval(cfg.Scheduler.GetPollInterval()),
		)
		components.Runner = runner
		components.runOnce = runner.RunOnce
	} else {
		slog.Info("No delivery command configured, delivery results are expected through the API")
	}

	cleanupNeeded = false
	slog.Info("Update components initialized successfully")
	return components, cleanup, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *updateAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Add metrics middleware if meter provider is configured
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(components.Coordinator, components.Prompts, components.Device, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
