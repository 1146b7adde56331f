package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Report ingestion metrics
var (
	// ReportGroupsTotal tracks processed report groups by report type and status
	ReportGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_groups_total",
			Help: "Total number of processed report groups by report type and status",
		},
		[]string{"report_type", "status"},
	)

	// ReportGroupDuration tracks report group processing duration
	ReportGroupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_group_duration_seconds",
			Help:    "Report group processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"report_type"},
	)

	// FindingsStoredTotal tracks findings persisted per report type
	FindingsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_stored_total",
			Help: "Total number of findings persisted by report type",
		},
		[]string{"report_type"},
	)

	// FindingsInvalidTotal tracks findings rejected by contract validation
	FindingsInvalidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_invalid_total",
			Help: "Total number of findings dropped by contract validation",
		},
		[]string{"report_type"},
	)

	// LeaseContentionTotal tracks lease acquisitions that hit a held lease
	LeaseContentionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_lease_contention_total",
			Help: "Total number of report group lease acquisitions that found the lease held",
		},
	)
)

// SBOM ingestion metrics
var (
	// SbomOccurrencesTotal tracks occurrence rows written per task outcome
	SbomOccurrencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbom_occurrences_total",
			Help: "Total number of dependency occurrences written by outcome",
		},
		[]string{"outcome"},
	)

	// SbomTaskDuration tracks per-task duration in the ingestion chain
	SbomTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sbom_task_duration_seconds",
			Help:    "SBOM ingestion task duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"task"},
	)

	// SbomUnknownLicensesTotal tracks components that resolved no license
	SbomUnknownLicensesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sbom_unknown_licenses_total",
			Help: "Total number of components whose licenses could not be resolved",
		},
	)
)

// Purge metrics
var (
	// PurgedScansTotal tracks scans marked purged
	PurgedScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purged_scans_total",
			Help: "Total number of stale scans marked purged",
		},
	)

	// PurgeRunDuration tracks purge run duration
	PurgeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purge_run_duration_seconds",
			Help:    "Stale scan purge run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// PurgeRunsResumedTotal tracks purge runs that resumed from a checkpoint
	PurgeRunsResumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purge_runs_resumed_total",
			Help: "Total number of purge runs that resumed from a persisted cursor",
		},
	)
)

// Job metrics
var (
	// JobsProcessedTotal tracks processed background jobs by type and status
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of processed background jobs by type and status",
		},
		[]string{"type", "status"},
	)

	// JobDuration tracks background job duration
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)
)
