// Package metrics provides Prometheus metrics for the marigold service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerSnapshots tracks snapshots loaded from the ledger by source
	LedgerSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "ledger",
			Name:      "snapshots_total",
			Help:      "Total number of ledger snapshots delivered",
		},
		[]string{"source"},
	)

	// LedgerErrors tracks ledger subscription failures by source
	LedgerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Total number of ledger subscription errors",
		},
		[]string{"source"},
	)

	// ActiveSubscriptions tracks live per-student payment subscriptions
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marigold",
			Subsystem: "dashboard",
			Name:      "payment_subscriptions",
			Help:      "Number of live per-student payment subscriptions",
		},
	)

	// StaleCallbacks tracks callbacks dropped because their subscription was disposed
	StaleCallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "dashboard",
			Name:      "stale_callbacks_total",
			Help:      "Total number of callbacks dropped after their subscription was disposed",
		},
	)

	// Recomputations tracks dashboard view recomputations
	Recomputations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "dashboard",
			Name:      "recomputations_total",
			Help:      "Total number of dashboard view recomputations",
		},
	)

	// RecomputeDuration tracks how long a recomputation takes
	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "marigold",
			Subsystem: "dashboard",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of dashboard view recomputations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// StreamListeners tracks connected SSE listeners
	StreamListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marigold",
			Subsystem: "dashboard",
			Name:      "stream_listeners",
			Help:      "Number of connected dashboard stream listeners",
		},
	)

	// AssistantRequests tracks assistant calls by operation and status
	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Total number of assistant requests",
		},
		[]string{"operation", "status"},
	)

	// AssistantDuration tracks assistant call duration
	AssistantDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marigold",
			Subsystem: "assistant",
			Name:      "request_duration_seconds",
			Help:      "Duration of assistant requests in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marigold",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marigold",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "marigold",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marigold",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordAssistantRequest records an assistant call
func RecordAssistantRequest(operation, status string, durationSeconds float64) {
	AssistantRequests.WithLabelValues(operation, status).Inc()
	AssistantDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
