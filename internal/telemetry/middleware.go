package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsMeterName is the name used for the update API meter
const HTTPMetricsMeterName = "github.com/stacklok/pwa-update-manager/http"

const unmatchedRoute = "unmatched"

// apiInstruments meter the update API. Paths carry app IDs, so requests are
// labelled with the chi route pattern and a status class only.
type apiInstruments struct {
	latency  metric.Float64Histogram
	requests metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

func newAPIInstruments(meter metric.Meter) (*apiInstruments, error) {
	latency, errLatency := meter.Float64Histogram(
		"pwa_updater_http_request_duration_seconds",
		metric.WithDescription("Latency of update API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	requests, errRequests := meter.Int64Counter(
		"pwa_updater_http_requests_total",
		metric.WithDescription("Update API requests by route and status class"),
		metric.WithUnit("{request}"),
	)
	inflight, errInflight := meter.Int64UpDownCounter(
		"pwa_updater_http_active_requests",
		metric.WithDescription("Update API requests being served"),
		metric.WithUnit("{request}"),
	)
	if err := errors.Join(errLatency, errRequests, errInflight); err != nil {
		return nil, err
	}
	return &apiInstruments{latency: latency, requests: requests, inflight: inflight}, nil
}

// MetricsMiddleware returns a middleware metering every API request. A nil provider
// yields a pass-through middleware.
func MetricsMiddleware(provider metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	if provider == nil {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	inst, err := newAPIInstruments(provider.Meter(HTTPMetricsMeterName))
	if err != nil {
		return nil, err
	}
	return inst.wrap, nil
}

func (i *apiInstruments) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		method := attribute.String("method", r.Method)
		i.inflight.Add(ctx, 1, metric.WithAttributes(method))
		defer i.inflight.Add(ctx, -1, metric.WithAttributes(method))

		next.ServeHTTP(ww, r)

		// The pattern is only complete once routing has finished
		attrs := metric.WithAttributes(
			method,
			attribute.String("route", routePattern(r)),
			attribute.String("status_class", statusClass(ww.Status())),
		)
		i.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		i.requests.Add(ctx, 1, attrs)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

// statusClass maps 404 to "4xx". A handler that never wrote a header answered 200.
func statusClass(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code/100) + "xx"
}
