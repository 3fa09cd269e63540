package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsAdmitted tracks admitted jobs per kind
	JobsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genledger_jobs_admitted_total",
			Help: "Total number of jobs admitted",
		},
		[]string{"kind"},
	)

	// JobsFinished tracks finished jobs per kind and outcome
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genledger_jobs_finished_total",
			Help: "Total number of jobs finished",
		},
		[]string{"kind", "outcome"},
	)

	// AdmissionsRejected tracks rejected admissions per reason
	AdmissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genledger_admissions_rejected_total",
			Help: "Total number of admissions rejected",
		},
		[]string{"reason"},
	)

	// PipelineStageLatency tracks pipeline stage latency
	PipelineStageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genledger_pipeline_stage_seconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// CreditsConsumed tracks total credits spent
	CreditsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genledger_credits_consumed_total",
			Help: "Total credits consumed",
		},
	)

	// CreditsRefunded tracks total credits refunded
	CreditsRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genledger_credits_refunded_total",
			Help: "Total credits refunded",
		},
	)

	// CreditsRegenerated tracks total credits regenerated
	CreditsRegenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genledger_credits_regenerated_total",
			Help: "Total credits added by regeneration",
		},
	)

	// CompensationFailures tracks compensation steps that themselves failed
	CompensationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genledger_compensation_failures_total",
			Help: "Total compensation attempts that errored",
		},
	)

	// StuckJobs tracks processing jobs older than the stuck threshold
	StuckJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genledger_stuck_jobs",
			Help: "Jobs still processing past the stuck threshold",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genledger_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
