package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "resolutions_total",
		Help:      "Total number of identity resolutions by match classification",
	}, []string{"match_status", "decision"})

	MatcherDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "matcher_query_duration_seconds",
		Help:      "Duration of nearest-neighbour queries per pool",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"pool"})

	ObservedCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "observed_created_total",
		Help:      "Total number of observed identities created on first sighting",
	})

	ObservedCreateRaces = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "observed_create_races_total",
		Help:      "First sightings that found a concurrently created observed identity under the creation lock",
	})

	SweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "sweep_expired_total",
		Help:      "Total number of observed identities transitioned to expired",
	})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "sweep_runs_total",
		Help:      "Lifecycle sweep runs by result (ok, error, skipped)",
	}, []string{"result"})

	AdminActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "admin_actions_total",
		Help:      "Administrative actions on observed identities by action and result",
	}, []string{"action", "result"})

	DecisionLogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "decision_log_failures_total",
		Help:      "Access decisions that could not be persisted to the audit log",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
