// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// Brief pipeline metrics

	ExtractionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brief_extraction_attempts_total",
			Help: "Extraction attempts by outcome (accepted, retry, failed)",
		},
		[]string{"outcome"},
	)

	BriefsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brief_documents_generated_total",
			Help: "Total number of final brief documents generated",
		},
	)

	QualityAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brief_quality_alerts_total",
			Help: "Quality alerts raised on generated briefs",
		},
		[]string{"reason"},
	)
)
