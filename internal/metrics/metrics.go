package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "privaudit"
)

var (
	collectDurationBuckets = []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1200}

	// Collection Metrics
	CollectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "collect_duration_seconds",
		Help:      "Time taken for a service collector run to complete.",
		Buckets:   collectDurationBuckets,
	}, []string{"collector_kind", "service"})

	CollectRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collect_runs_total",
		Help:      "Count of collector executions.",
	}, []string{"collector_kind", "service", "status"})

	CollectedRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collected_records",
		Help:      "Number of assignment records returned by the last collector run.",
	}, []string{"collector_kind", "service"})

	// Audit Metrics
	AuditRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_runs_total",
		Help:      "Count of audit executions.",
	}, []string{"status"})

	AuditDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "audit_duration_seconds",
		Help:      "Time taken for a full audit to complete.",
		Buckets:   collectDurationBuckets,
	})

	AuditLastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful audit.",
	})

	DuplicatesRemoved = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duplicates_removed",
		Help:      "Number of duplicate records removed by the last deduplication pass.",
	}, []string{"mode"})

	UniquePrivilegedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unique_privileged_users",
		Help:      "Number of unique privileged users found by the last audit.",
	})
)
