// Package metrics provides Prometheus metrics for the customization service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks handled HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customization",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of handled HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// RequestDuration tracks request handling duration in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "customization",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of handled HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// BatchOperationsTotal tracks batch sub-operations by outcome.
	BatchOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customization",
			Subsystem: "batch",
			Name:      "operations_total",
			Help:      "Total number of batch sub-operations by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// BatchesTotal tracks whole batches by result.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customization",
			Subsystem: "batch",
			Name:      "batches_total",
			Help:      "Total number of batches by result",
		},
		[]string{"kind", "result"},
	)

	// CompactionsTotal tracks compaction runs.
	CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customization",
			Subsystem: "sorting",
			Name:      "compactions_total",
			Help:      "Total number of compaction runs by result",
		},
		[]string{"result"},
	)

	// CompactionRenumbered tracks rows rewritten per compaction run.
	CompactionRenumbered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "customization",
			Subsystem: "sorting",
			Name:      "compaction_renumbered_rows",
			Help:      "Rows renumbered per compaction run",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// PreconditionFailuresTotal tracks optimistic-concurrency rejections.
	PreconditionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customization",
			Subsystem: "store",
			Name:      "precondition_failures_total",
			Help:      "Total number of version token mismatches",
		},
		[]string{"kind"},
	)

	// IdentitiesResolvedTotal tracks identity resolutions by result.
	IdentitiesResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customization",
			Subsystem: "identity",
			Name:      "resolved_total",
			Help:      "Total number of identity resolutions by result",
		},
		[]string{"result"},
	)
)

// RecordBatchResult records outcome counters for one committed batch.
func RecordBatchResult(kind string, created, updated, deleted, unchanged int) {
	BatchOperationsTotal.WithLabelValues(kind, "created").Add(float64(created))
	BatchOperationsTotal.WithLabelValues(kind, "updated").Add(float64(updated))
	BatchOperationsTotal.WithLabelValues(kind, "deleted").Add(float64(deleted))
	BatchOperationsTotal.WithLabelValues(kind, "unchanged").Add(float64(unchanged))
	BatchesTotal.WithLabelValues(kind, "committed").Inc()
}
