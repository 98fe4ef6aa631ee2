// Package metrics defines the Prometheus instrumentation shared across the
// ingestion pipeline and admin surface, following the same
// promauto-registered CounterVec/Histogram/Gauge shape as the teacher's
// internal/adapter/metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric GenHook registers.
type Metrics struct {
	WebhooksTotal     *prometheus.CounterVec
	WebhookBytesTotal prometheus.Counter
	ExtractDuration   prometheus.Histogram

	SinkRequestsTotal *prometheus.CounterVec
	SinkRetriesTotal  prometheus.Counter
	SinkLatency       prometheus.Histogram
	SinkCircuitOpen   prometheus.Gauge

	PayloadLogRotations *prometheus.CounterVec
	PayloadLogErrors    *prometheus.CounterVec

	AdminOpsTotal *prometheus.CounterVec
}

// New initialises and registers every metric.
func New() *Metrics {
	return &Metrics{
		WebhooksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "ingest",
			Name:      "webhooks_total",
			Help:      "Total number of received webhooks by outcome.",
		}, []string{"service", "outcome"}), // outcome: success, failure, empty_payload, invalid_json, timeout, not_found

		WebhookBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "ingest",
			Name:      "webhook_bytes_total",
			Help:      "Total number of bytes received across all webhooks.",
		}),

		ExtractDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "genhook",
			Subsystem: "ingest",
			Name:      "extract_render_seconds",
			Help:      "Time spent extracting fields and rendering the message template.",
			Buckets:   prometheus.DefBuckets,
		}),

		SinkRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "sink",
			Name:      "requests_total",
			Help:      "Total number of sink requests by outcome.",
		}, []string{"outcome"}), // outcome: success, rejected, unavailable

		SinkRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "sink",
			Name:      "retries_total",
			Help:      "Total number of sink send retries.",
		}),

		SinkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "genhook",
			Subsystem: "sink",
			Name:      "request_seconds",
			Help:      "Latency of sink requests, including retries.",
			Buckets:   prometheus.DefBuckets,
		}),

		SinkCircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "genhook",
			Subsystem: "sink",
			Name:      "circuit_open",
			Help:      "1 when the sink circuit breaker is open, 0 otherwise.",
		}),

		PayloadLogRotations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "payloadlog",
			Name:      "rotations_total",
			Help:      "Total number of payload log rotations by service.",
		}, []string{"service"}),

		PayloadLogErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "payloadlog",
			Name:      "errors_total",
			Help:      "Total number of payload log IO failures by service.",
		}, []string{"service"}),

		AdminOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genhook",
			Subsystem: "admin",
			Name:      "operations_total",
			Help:      "Total number of admin surface operations by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}
}
