// Package observability holds the Prometheus collectors for the mileage service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/mileage/internal/mileage"
)

var (
	aggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mileage_service",
		Subsystem: "aggregation",
		Name:      "duration_seconds",
		Help:      "Time spent aggregating and sorting one monthly breakdown.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	activitiesCounted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mileage_service",
		Subsystem: "aggregation",
		Name:      "activities_counted_total",
		Help:      "Activities added to a discipline total.",
	})

	activitiesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mileage_service",
		Subsystem: "aggregation",
		Name:      "activities_skipped_total",
		Help:      "Activities left out of every total, labeled by reason.",
	}, []string{"reason"})

	ownersSynthesized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mileage_service",
		Subsystem: "aggregation",
		Name:      "owners_synthesized_total",
		Help:      "Rows created for activity owners missing from the roster.",
	})

	rowsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mileage_service",
		Subsystem: "classification",
		Name:      "rows_total",
		Help:      "Monthly rows classified, labeled by tier.",
	}, []string{"tier"})

	snapshotFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mileage_service",
		Subsystem: "snapshot",
		Name:      "fetch_failures_total",
		Help:      "Failed snapshot reads, labeled by operation.",
	}, []string{"op"})

	snapshotCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mileage_service",
		Subsystem: "snapshot",
		Name:      "cache_lookups_total",
		Help:      "Snapshot cache lookups, labeled by result.",
	}, []string{"result"})

	snapshotLoadedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mileage_service",
		Subsystem: "snapshot",
		Name:      "last_loaded_timestamp_seconds",
		Help:      "Unix timestamp of the most recent snapshot fetched from the store.",
	})

	snapshotSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mileage_service",
		Subsystem: "snapshot",
		Name:      "last_loaded_records",
		Help:      "Record counts of the most recent snapshot, labeled by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		aggregationDuration,
		activitiesCounted,
		activitiesSkipped,
		ownersSynthesized,
		rowsClassified,
		snapshotFetchFailures,
		snapshotCacheLookups,
		snapshotLoadedGauge,
		snapshotSize,
	)
}

// RecordAggregation observes one aggregation pass.
func RecordAggregation(elapsed time.Duration, stats mileage.Stats) {
	aggregationDuration.Observe(elapsed.Seconds())
	activitiesCounted.Add(float64(stats.Counted))
	ownersSynthesized.Add(float64(stats.Synthesized))
	for reason, n := range stats.Skipped {
		activitiesSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// RecordTier counts one classified row.
func RecordTier(tier mileage.Tier) {
	rowsClassified.WithLabelValues(tier.String()).Inc()
}

// RecordFetchFailure counts a failed snapshot read.
func RecordFetchFailure(op string) {
	snapshotFetchFailures.WithLabelValues(op).Inc()
}

// RecordCacheLookup counts a snapshot cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	snapshotCacheLookups.WithLabelValues(result).Inc()
}

// RecordSnapshotLoaded updates the snapshot watermark and size gauges.
func RecordSnapshotLoaded(ts time.Time, users, activities int) {
	if ts.IsZero() {
		return
	}
	snapshotLoadedGauge.Set(float64(ts.Unix()))
	snapshotSize.WithLabelValues("users").Set(float64(users))
	snapshotSize.WithLabelValues("activities").Set(float64(activities))
}
