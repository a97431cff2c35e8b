package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the providers handed to the update manager and flushes them on exit
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler

	mu        sync.Mutex
	shutdowns []func(context.Context) error
}

// Option is a function that configures the telemetry setup
type Option func(*options)

type options struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// New initializes telemetry from the configuration. A nil or disabled configuration
// yields no-op providers. The caller must call Shutdown on exit.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := o.config

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	t := &Telemetry{}
	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	t.tracerProvider = tp
	if sdk, ok := tp.(*sdktrace.TracerProvider); ok {
		t.onShutdown(sdk.Shutdown)
	}

	mp, handler, err := newMeterProvider(ctx, cfg)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}
	t.meterProvider = mp
	t.metricsHandler = handler
	if sdk, ok := mp.(*sdkmetric.MeterProvider); ok {
		t.onShutdown(sdk.Shutdown)
	}

	if cfg != nil && cfg.Enabled {
		slog.Info("Telemetry initialized",
			"service_name", cfg.GetServiceName(),
			"service_version", cfg.GetServiceVersion(),
			"tracing", cfg.tracingEnabled(),
			"metrics", cfg.metricsEnabled())
	}
	return t, nil
}

func (t *Telemetry) onShutdown(fn func(context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdowns = append(t.shutdowns, fn)
}

// TracerProvider returns the provider of update cycle spans
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the provider of update pipeline and API metrics
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the Prometheus scrape handler, or nil when metrics are pushed
// over OTLP or disabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Shutdown flushes pending spans and metrics, most recently created provider first.
// Later calls do nothing.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	shutdowns := t.shutdowns
	t.shutdowns = nil
	t.mu.Unlock()

	var errs []error
	for i := len(shutdowns) - 1; i >= 0; i-- {
		if err := shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shutdown telemetry: %w", err)
	}
	return nil
}
