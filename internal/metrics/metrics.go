// Package metrics exposes Prometheus instrumentation for the publish,
// replication, and notification flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the distributor.
type Metrics struct {
	PublishRequestsTotal    *prometheus.CounterVec
	PublishAdapterTotal     *prometheus.CounterVec
	PublishAdapterDuration  *prometheus.HistogramVec
	ReplicationsTotal       *prometheus.CounterVec
	ReplicationChainsMissed prometheus.Histogram
	NotificationsSentTotal  *prometheus.CounterVec
	NotificationDuration    *prometheus.HistogramVec
	CircuitBreakerState     *prometheus.GaugeVec
	SubscriptionsActive     prometheus.Gauge
	AdaptersHealthy         prometheus.Gauge
	CacheOperationsTotal    *prometheus.CounterVec
}

// New creates and registers all collectors under the given namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ied"
	}

	return &Metrics{
		PublishRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "requests_total",
				Help:      "Total number of publishEvent requests received",
			},
			[]string{"status"},
		),
		PublishAdapterTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "adapter_calls_total",
				Help:      "Total number of per-adapter publish attempts",
			},
			[]string{"adapter", "status"},
		),
		PublishAdapterDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "adapter_duration_seconds",
				Help:      "Duration of per-adapter publish calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"adapter", "status"},
		),
		ReplicationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replication",
				Name:      "events_total",
				Help:      "Total number of incoming events processed for replication",
			},
			[]string{"status"},
		),
		ReplicationChainsMissed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "replication",
				Name:      "chains_missed",
				Help:      "Number of chains found missing an event per replication pass",
				Buckets:   []float64{0, 1, 2, 3, 5, 10},
			},
		),
		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "sent_total",
				Help:      "Total number of consumer webhook notifications attempted",
			},
			[]string{"status"},
		),
		NotificationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "duration_seconds",
				Help:      "Duration of consumer webhook POSTs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per target (0=closed, 1=half-open, 2=open)",
			},
			[]string{"target"},
		),
		SubscriptionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscriptions_active",
				Help:      "Current number of active subscriptions",
			},
		),
		AdaptersHealthy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "adapters_healthy",
				Help:      "Current number of healthy registered adapters",
			},
		),
		CacheOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Total number of cache backend operations",
			},
			[]string{"operation", "status"},
		),
	}
}

// RecordPublish records the outcome of a publishEvent request.
func (m *Metrics) RecordPublish(status string) {
	m.PublishRequestsTotal.WithLabelValues(status).Inc()
}

// RecordAdapterPublish records a single adapter's publish attempt.
func (m *Metrics) RecordAdapterPublish(adapter, status string, seconds float64) {
	m.PublishAdapterTotal.WithLabelValues(adapter, status).Inc()
	m.PublishAdapterDuration.WithLabelValues(adapter, status).Observe(seconds)
}

// RecordReplication records a completed replication pass.
func (m *Metrics) RecordReplication(status string, chainsMissed int) {
	m.ReplicationsTotal.WithLabelValues(status).Inc()
	m.ReplicationChainsMissed.Observe(float64(chainsMissed))
}

// RecordNotification records the outcome of a consumer webhook delivery.
func (m *Metrics) RecordNotification(status string, seconds float64) {
	m.NotificationsSentTotal.WithLabelValues(status).Inc()
	m.NotificationDuration.WithLabelValues(status).Observe(seconds)
}

// SetCircuitBreakerState records the current state of a breaker for target.
// state follows gobreaker.State ordering: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(target string, state int) {
	m.CircuitBreakerState.WithLabelValues(target).Set(float64(state))
}

// SetSubscriptionsActive updates the active subscription count gauge.
func (m *Metrics) SetSubscriptionsActive(count int) {
	m.SubscriptionsActive.Set(float64(count))
}

// SetAdaptersHealthy updates the healthy-adapter count gauge.
func (m *Metrics) SetAdaptersHealthy(count int) {
	m.AdaptersHealthy.Set(float64(count))
}

// RecordCacheOp records a cache backend operation outcome.
func (m *Metrics) RecordCacheOp(operation, status string) {
	m.CacheOperationsTotal.WithLabelValues(operation, status).Inc()
}
