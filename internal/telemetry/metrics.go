package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UpdateMetricsMeterName is the name used for the update pipeline meter
const UpdateMetricsMeterName = "github.com/stacklok/pwa-update-manager/update"

// Identity dialog outcomes
const (
	DialogShowing         = "showing"
	DialogNotShowing      = "not_showing"
	DialogAlreadyApproved = "already_approved"
)

// UpdateMetrics holds the instruments for the update pipeline
type UpdateMetrics struct {
	checkDuration   metric.Float64Histogram
	checksTotal     metric.Int64Counter
	reasonsTotal    metric.Int64Counter
	dialogsTotal    metric.Int64Counter
	requestsTotal   metric.Int64Counter
	deliveriesTotal metric.Int64Counter
	fetchTimeouts   metric.Int64Counter
}

// NewUpdateMetrics creates the update pipeline instruments.
// If provider is nil, it returns nil (no-op metrics).
func NewUpdateMetrics(provider metric.MeterProvider) (*UpdateMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(UpdateMetricsMeterName)

	checkDuration, err := meter.Float64Histogram(
		"pwa_updater_check_duration_seconds",
		metric.WithDescription("Duration from update check start to its outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	checksTotal, err := meter.Int64Counter(
		"pwa_updater_checks_total",
		metric.WithDescription("Update checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	reasonsTotal, err := meter.Int64Counter(
		"pwa_updater_update_reasons_total",
		metric.WithDescription("Update reasons detected across checks"),
		metric.WithUnit("{reason}"),
	)
	if err != nil {
		return nil, err
	}

	dialogsTotal, err := meter.Int64Counter(
		"pwa_updater_identity_dialogs_total",
		metric.WithDescription("Identity dialog decisions by outcome"),
		metric.WithUnit("{dialog}"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"pwa_updater_requests_total",
		metric.WithDescription("Update requests issued"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	deliveriesTotal, err := meter.Int64Counter(
		"pwa_updater_deliveries_total",
		metric.WithDescription("Update request deliveries by result"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	fetchTimeouts, err := meter.Int64Counter(
		"pwa_updater_fetch_timeouts_total",
		metric.WithDescription("Manifest fetches that did not finish before the timeout"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &UpdateMetrics{
		checkDuration:   checkDuration,
		checksTotal:     checksTotal,
		reasonsTotal:    reasonsTotal,
		dialogsTotal:    dialogsTotal,
		requestsTotal:   requestsTotal,
		deliveriesTotal: deliveriesTotal,
		fetchTimeouts:   fetchTimeouts,
	}, nil
}

// RecordCheck records a completed check and how long it took
func (m *UpdateMetrics) RecordCheck(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.checksTotal.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordReasons counts each detected update reason
func (m *UpdateMetrics) RecordReasons(ctx context.Context, reasons []string) {
	if m == nil {
		return
	}
	for _, r := range reasons {
		m.reasonsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", r)))
	}
}

// RecordDialog records the identity dialog outcome of a check
func (m *UpdateMetrics) RecordDialog(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.dialogsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRequest records an issued update request
func (m *UpdateMetrics) RecordRequest(ctx context.Context, forced bool) {
	if m == nil {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("forced", forced)))
}

// RecordDelivery records the result of delivering an update request
func (m *UpdateMetrics) RecordDelivery(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.deliveriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordFetchTimeout records a manifest fetch timeout
func (m *UpdateMetrics) RecordFetchTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.fetchTimeouts.Add(ctx, 1)
}
