package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_tasks_submitted_total",
			Help: "Total number of research tasks submitted",
		},
	)

	TasksResumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_tasks_resumed_total",
			Help: "Total number of tasks resumed after clarification",
		},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal or paused state",
		},
		[]string{"status", "kind"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researcher_task_duration_seconds",
			Help:    "Wall time of one worker run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researcher_active_workers",
			Help: "Number of pipeline workers currently running",
		},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researcher_stage_duration_seconds",
			Help:    "Duration of stage collaborator calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_stage_errors_total",
			Help: "Stage collaborator failures",
		},
		[]string{"stage"},
	)

	EnrichmentFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_enrichment_fallbacks_total",
			Help: "Enrichment runs whose output was discarded in favor of the extracted records",
		},
	)

	// Round metrics
	ExtractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_extraction_outcomes_total",
			Help: "Per-source extraction outcomes",
		},
		[]string{"outcome"},
	)

	RoundsPerTask = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researcher_rounds_per_task",
			Help:    "Search and extract rounds used per task",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	Completeness = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researcher_round_completeness",
			Help:    "Completeness score evaluated by the quality gate",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)
)

// Extraction outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// RecordStage records the duration and failure of a single stage call.
func RecordStage(stage string, seconds float64, err error) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
	if err != nil {
		StageErrors.WithLabelValues(stage).Inc()
	}
}
