package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the snapshot cache
type Metrics struct {
	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Chain node memoization metrics
	NodeHitsTotal   prometheus.Counter
	NodeMissesTotal prometheus.Counter
	ChainWalkDepth  prometheus.Histogram

	// Versioned log metrics
	LogFetchesTotal *prometheus.CounterVec
	CatchUpDuration prometheus.Histogram

	// Cache state metrics
	WatermarkVersion  prometheus.Gauge
	IndexedEntities   prometheus.Gauge
	MaterializedNodes prometheus.Gauge

	// System metrics
	MemoryUsageBytes prometheus.Gauge
	GoroutinesTotal  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "queries_total",
			Help:      "Total number of snapshot queries by operation and outcome",
		}, []string{"op", "outcome"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "query_duration_seconds",
			Help:      "Histogram of snapshot query durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		NodeHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "node_hits_total",
			Help:      "Chain node lookups served from the memoized entry store",
		}),
		NodeMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "node_misses_total",
			Help:      "Chain node lookups that required a log fetch",
		}),
		ChainWalkDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "chain_walk_depth",
			Help:      "Number of chain nodes visited per resolved query",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		}),

		LogFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verscache",
			Subsystem: "log",
			Name:      "fetches_total",
			Help:      "Total number of versioned log reads by operation",
		}, []string{"op"}),
		CatchUpDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "verscache",
			Subsystem: "log",
			Name:      "catch_up_duration_seconds",
			Help:      "Histogram of watermark catch-up durations",
			Buckets:   prometheus.DefBuckets,
		}),

		WatermarkVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "watermark_version",
			Help:      "Highest log version incorporated into the entity version index",
		}),
		IndexedEntities: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "indexed_entities",
			Help:      "Number of distinct entity keys in the version index",
		}),
		MaterializedNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "verscache",
			Subsystem: "cache",
			Name:      "materialized_nodes",
			Help:      "Number of memoized chain nodes in the entry store",
		}),

		MemoryUsageBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "verscache",
			Subsystem: "system",
			Name:      "memory_usage_bytes",
			Help:      "Current heap allocation in bytes",
		}),
		GoroutinesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "verscache",
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		}),
	}
}
