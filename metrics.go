package dataloader

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle:
// dispatch, authorisation, rate limiting, cancellation and completion. It is
// safe for concurrent use, and a nil collector is a no-op.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	authorisationsTotal *prometheus.CounterVec

	rateLimitedTotal *prometheus.CounterVec

	cancellationsTotal *prometheus.CounterVec

	operationsActive prometheus.Gauge

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataloader_requests_total",
				Help: "Total number of requests completed",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataloader_request_duration_seconds",
				Help:    "Duration of requests from dispatch to completion in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataloader_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		authorisationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataloader_authorisations_total",
				Help: "Total number of authorisation handshakes by outcome",
			},
			[]string{"outcome"},
		),
		rateLimitedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataloader_rate_limited_total",
				Help: "Total number of requests aborted by the rate limiter",
			},
			[]string{"host"},
		),
		cancellationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataloader_cancellations_total",
				Help: "Total number of requests cancelled by callers",
			},
			[]string{"method", "endpoint"},
		),
		operationsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "dataloader_operations_active",
				Help: "Current number of registered in-flight operations",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataloader_errors_total",
				Help: "Total number of failed requests by error type",
			},
			[]string{"type", "method", "endpoint"},
		),
	}

	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}
	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordAuthorisation increments the handshake counter for an outcome,
// either "granted" or "denied".
func (mc *MetricsCollector) RecordAuthorisation(outcome string) {
	if mc == nil {
		return
	}

	mc.authorisationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimited increments the rate limited counter for a host.
func (mc *MetricsCollector) RecordRateLimited(host string) {
	if mc == nil {
		return
	}

	mc.rateLimitedTotal.WithLabelValues(host).Inc()
}

// RecordCancellation increments the cancellation counter.
func (mc *MetricsCollector) RecordCancellation(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cancellationsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordOperationsActive sets the active operation gauge.
func (mc *MetricsCollector) RecordOperationsActive(count int) {
	if mc == nil {
		return
	}

	mc.operationsActive.Set(float64(count))
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry when the collector
// was built on one.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
