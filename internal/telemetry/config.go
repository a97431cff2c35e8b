// Package telemetry provides OpenTelemetry instrumentation for the update manager.
// Update cycles are traced and the update pipeline and HTTP API are metered. Metrics
// are pushed over OTLP or scraped by Prometheus from the API server.
package telemetry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/pwa-update-manager/internal/versions"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "pwa-updater"

	// DefaultEndpoint is the default OTLP endpoint for telemetry
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the default trace sampling rate
	DefaultSampling = 0.05

	// ExporterOTLP pushes metrics to an OTLP collector
	ExporterOTLP = "otlp"

	// ExporterPrometheus exposes metrics on the HTTP server's /metrics path
	ExporterPrometheus = "prometheus"
)

// Config is the telemetry section of the service configuration
type Config struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName and ServiceVersion identify this process in the exported resource.
	// The version defaults to the build version.
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Environment is exported as deployment.environment when set
	Environment string `yaml:"environment,omitempty"`

	// Endpoint is the OTLP collector in "host:port" form
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`

	// Headers are sent with every OTLP export, e.g. collector credentials
	Headers map[string]string `yaml:"headers,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls update cycle tracing
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of cycles traced, between 0.0 and 1.0
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls the update pipeline and API metrics
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp" (default) or "prometheus"
	Exporter string `yaml:"exporter,omitempty"`
}

// GetServiceName returns the service name, using default if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version or the build version
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return versions.Version
	}
	return c.ServiceVersion
}

// GetEndpoint returns the endpoint, using default if not specified
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio; 0 means the default
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// GetExporter returns the metrics exporter kind
func (c *MetricsConfig) GetExporter() string {
	if c.Exporter == "" {
		return ExporterOTLP
	}
	return c.Exporter
}

// Validate checks the enabled parts of the configuration. A nil or disabled
// configuration is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	for name := range c.Headers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("headers: header name must not be empty"))
			break
		}
	}
	if c.tracingEnabled() {
		if s := c.Tracing.Sampling; s < 0 || s > 1.0 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %f", s))
		}
	}
	if c.metricsEnabled() {
		switch c.Metrics.GetExporter() {
		case ExporterOTLP, ExporterPrometheus:
		default:
			errs = append(errs, fmt.Errorf("metrics: exporter must be '%s' or '%s', got '%s'",
				ExporterOTLP, ExporterPrometheus, c.Metrics.Exporter))
		}
	}
	return errors.Join(errs...)
}
