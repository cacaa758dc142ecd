package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboxProcessed counts outbox events acknowledged by the remote store.
	OutboxProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_outbox_processed_total",
		Help: "Outbox events applied to the remote store",
	}, []string{"table", "op"})

	// OutboxFailed counts failed apply attempts.
	OutboxFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_outbox_failed_total",
		Help: "Failed outbox apply attempts",
	}, []string{"table", "op"})

	// OutboxDLQ counts events moved to the dead letter queue.
	OutboxDLQ = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_outbox_dlq_total",
		Help: "Outbox events moved to the dead letter queue",
	}, []string{"table"})

	// OutboxPending is the number of unresolved outbox events seen by the last poll.
	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "softspot_outbox_pending",
		Help: "Unresolved outbox events",
	})

	// RemoteRequestLatency records remote-store call latency.
	RemoteRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "softspot_remote_request_seconds",
		Help:    "Remote store request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// LocalStoreErrors counts swallowed local persistence failures.
	LocalStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_local_store_errors_total",
		Help: "Local persistence shim errors by operation",
	}, []string{"operation"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// UserSyncAttempts counts user sync attempts by outcome.
	UserSyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_user_sync_attempts_total",
		Help: "User sync attempts by outcome",
	}, []string{"outcome"})

	// BadgesAwarded counts ledger appends by badge.
	BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_badges_awarded_total",
		Help: "Badge ledger events appended",
	}, []string{"badge"})

	// WebSocketConnections is the gauge of live notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "softspot_websocket_connections",
		Help: "Active notification WebSocket connections",
	})

	// WebSocketDrops counts notification frames dropped for a slow or closed socket.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softspot_websocket_drops_total",
		Help: "Notification frames dropped before delivery",
	}, []string{"reason"})
)
