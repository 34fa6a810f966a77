// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "socialhub"

var (
	// HTTPRequestTotal counts requests by method, route template and status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is the request latency histogram.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "path"},
	)

	// AuthOperationsTotal counts account lifecycle operations by outcome.
	AuthOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Account lifecycle operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// NotificationsTotal counts notification intents by event and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification intents by event name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// TokenRevocationsTotal counts jtis written to the revocation ledger.
	TokenRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_revocations_total",
			Help:      "Total number of revoked token identifiers.",
		},
	)

	// RevocationCacheHitsTotal counts revocation lookups answered by redis.
	RevocationCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocation_cache_hits_total",
			Help:      "Revocation lookups answered from the cache.",
		},
	)
)

// Outcome labels a finished operation.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
