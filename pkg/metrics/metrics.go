package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks websocket sessions currently registered with the bus.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopcore_realtime_active_sessions",
			Help: "Number of live websocket sessions",
		},
	)

	// PublishedEnvelopes counts envelopes published per group kind (user|tenant).
	PublishedEnvelopes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcore_realtime_published_total",
			Help: "Total number of envelopes published to the fan-out layer",
		},
		[]string{"kind"},
	)

	// DroppedEnvelopes counts envelopes dropped due to slow consumers.
	DroppedEnvelopes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopcore_realtime_dropped_total",
			Help: "Total number of envelopes dropped for backpressured sessions",
		},
	)

	// NotificationsCreated counts durable notification rows by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcore_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"type"},
	)

	// SweepDelivered counts scheduled notifications delivered by the periodic sweep.
	SweepDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopcore_scheduled_sweep_delivered_total",
			Help: "Total number of scheduled notifications delivered",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
