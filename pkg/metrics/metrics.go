package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// live websocket connections held by the registry
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_live_connections",
			Help: "Number of registered admin connections",
		},
	)

	// pushes attempted by the delivery multiplexer
	PushCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_push_total",
			Help: "Total number of pushes to live connections",
		},
		[]string{"event", "outcome"}, // outcome: sent, dropped
	)

	// one fan-out pass, from snapshot to last send attempt
	FanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_fanout_duration_seconds",
			Help:    "Fan-out pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"kind"}, // kind: created, updated, resync
	)

	FeedEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_feed_events_total",
			Help: "Change feed events received",
		},
		[]string{"op"},
	)

	FeedReconnectCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_feed_reconnects_total",
			Help: "Change feed re-subscription attempts",
		},
	)

	IngressCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_ingress_total",
			Help: "notification.create commands consumed from MQ",
		},
		[]string{"outcome"}, // created, duplicate, invalid, retry, dead_lettered
	)

	IdentityLookupCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_identity_lookups_total",
			Help: "Admin identity lookups",
		},
		[]string{"source", "outcome"}, // source: cache, service, static
	)

	// MQ consume latency in milliseconds
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// HTTP request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Queries slower than the configured threshold",
		},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)
)

// RecordPush counts one push attempt
func RecordPush(event string, sent bool) {
	outcome := "sent"
	if !sent {
		outcome = "dropped"
	}
	PushCount.WithLabelValues(event, outcome).Inc()
}

// RecordFanout records one fan-out pass
func RecordFanout(kind string, duration time.Duration) {
	FanoutDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordMQConsumeLatency records MQ consume latency
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration records HTTP latency
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow query
func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}
