package coordinator

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pwa-update-manager/internal/approval"
	"github.com/stacklok/pwa-update-manager/internal/dialog"
	"github.com/stacklok/pwa-update-manager/internal/fetch"
	"github.com/stacklok/pwa-update-manager/internal/reasons"
	"github.com/stacklok/pwa-update-manager/internal/record"
	"github.com/stacklok/pwa-update-manager/internal/request"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
	"github.com/stacklok/pwa-update-manager/internal/telemetry"
)

// Option configures the coordinator
type Option func(*Coordinator)

// WithRecords sets the app record repository
func WithRecords(records *record.Repository) Option {
	return func(c *Coordinator) {
		c.records = records
	}
}

// WithEngine sets the update reason engine
func WithEngine(engine *reasons.Engine) Option {
	return func(c *Coordinator) {
		c.engine = engine
	}
}

// WithGate sets the identity approval gate
func WithGate(gate *approval.Gate) Option {
	return func(c *Coordinator) {
		c.gate = gate
	}
}

// WithFetcher sets the manifest fetcher
func WithFetcher(fetcher fetch.Fetcher) Option {
	return func(c *Coordinator) {
		c.fetcher = fetcher
	}
}

// WithSerializer sets the pending request serializer
func WithSerializer(serializer *request.Serializer) Option {
	return func(c *Coordinator) {
		c.serializer = serializer
	}
}

// WithScheduler sets the delivery job scheduler
func WithScheduler(scheduler schedule.Scheduler) Option {
	return func(c *Coordinator) {
		c.scheduler = scheduler
	}
}

// WithDialog sets the identity update prompt presenter
func WithDialog(presenter dialog.Presenter) Option {
	return func(c *Coordinator) {
		c.dialog = presenter
	}
}

// WithMetrics sets the update pipeline metrics
func WithMetrics(metrics *telemetry.UpdateMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithTracerProvider sets the provider of update cycle spans
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if provider != nil {
			c.tracer = provider.Tracer(telemetry.TracerName)
		}
	}
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}
