// Package metrics holds the Prometheus collectors of the aggregator.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wallet_aggregator"

var (
	UpstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_calls_total",
		Help:      "Upstream provider calls by provider, capability and outcome.",
	}, []string{"provider", "capability", "outcome"})

	UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of HTTP requests sent to upstream providers.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "status"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Router cache lookups by capability and result (hit|miss).",
	}, []string{"capability", "result"})

	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted because the cache reached its capacity.",
	})

	LimiterWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rate_limiter_wait_seconds",
		Help:      "Time spent waiting for a rate-limit admission.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"provider"})

	Fallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_fallbacks_total",
		Help:      "Times the router moved past a failing provider.",
	}, []string{"capability", "provider"})

	SnapshotChains = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_chains_total",
		Help:      "Chains processed by the snapshot aggregator by result (kept|dropped).",
	}, []string{"result"})

	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_subscriptions",
		Help:      "Polling subscriptions currently active.",
	})
)

var registerOnce sync.Once

// MustRegisterMetrics registers every collector with the default Prometheus registry.
// Calling it more than once is a no-op.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			UpstreamCalls,
			UpstreamLatency,
			CacheLookups,
			CacheEvictions,
			LimiterWait,
			Fallbacks,
			SnapshotChains,
			ActiveSubscriptions,
		)
	})
}

// ObserveLimiterWait is shaped to plug into ratelimit.Registry.OnWait.
func ObserveLimiterWait(provider string, waited time.Duration) {
	LimiterWait.WithLabelValues(provider).Observe(waited.Seconds())
}
