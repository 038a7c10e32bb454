package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics holds the Prometheus metrics owned by the engine. One
// instance is created in New so tests can inject a fresh registry without
// polluting the default one.
type engineMetrics struct {
	// runsStarted counts runs created by Trigger or recovered on Start.
	runsStarted prometheus.Counter

	// runsFinished counts runs that reached a terminal state, partitioned
	// by outcome: "completed" or "failed".
	runsFinished *prometheus.CounterVec

	// retriesTotal counts retry attempts scheduled after a retryable
	// failure.
	retriesTotal prometheus.Counter

	// stepsTotal counts step resolutions, partitioned by how the output
	// was obtained: "executed" or "memoized".
	stepsTotal *prometheus.CounterVec

	// runDuration records end-to-end run duration including backoff
	// between attempts.
	runDuration prometheus.Histogram
}

// newEngineMetrics registers the engine metrics against reg. A nil reg
// leaves the metrics unregistered, which keeps them inert.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)

	return &engineMetrics{
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "workflow",
			Name:      "runs_started_total",
			Help:      "Total number of workflow runs created or recovered.",
		}),

		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "workflow",
			Name:      "runs_finished_total",
			Help:      "Total number of workflow runs that reached a terminal state, partitioned by outcome.",
		}, []string{"outcome"}),

		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "workflow",
			Name:      "retries_total",
			Help:      "Total number of retry attempts scheduled after retryable run failures.",
		}),

		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "workflow",
			Name:      "steps_total",
			Help:      "Total number of step resolutions, partitioned by executed vs memoized.",
		}, []string{"result"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of workflow runs including retry backoff.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}
