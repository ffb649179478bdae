package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks send attempts per operation and outcome
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "georetry_attempts_total",
			Help: "Total number of request send attempts",
		},
		[]string{"operation", "outcome"},
	)

	// RetryDecisionsTotal tracks decisions returned by each retry policy
	RetryDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "georetry_retry_decisions_total",
			Help: "Total number of retry decisions per policy",
		},
		[]string{"policy", "decision"},
	)

	// RetryBackoff tracks the delay requested by retrying policies
	RetryBackoff = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "georetry_retry_backoff_seconds",
			Help:    "Backoff requested before a retry in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"policy"},
	)

	// RenamesDetected counts containers found recreated under the same name
	RenamesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "georetry_container_renames_detected_total",
			Help: "Total number of container identity changes detected on stale sessions",
		},
	)

	// SessionClearsTotal tracks session tokens dropped by reason
	SessionClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "georetry_session_clears_total",
			Help: "Total number of session token clears",
		},
		[]string{"reason"},
	)

	// CollectionCacheTotal tracks collection resolver cache results
	CollectionCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "georetry_collection_cache_total",
			Help: "Collection resolver lookups by result",
		},
		[]string{"result"},
	)

	// EndpointRefreshesTotal tracks regional endpoint refreshes
	EndpointRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "georetry_endpoint_refreshes_total",
			Help: "Total number of regional endpoint refreshes",
		},
		[]string{"result"},
	)

	// EndpointsUnavailable tracks endpoints currently marked unavailable
	EndpointsUnavailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "georetry_endpoints_unavailable",
			Help: "Number of regional endpoints marked unavailable",
		},
		[]string{"kind"},
	)
)
