// Package metrics provides Prometheus metrics for the feedback router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedback_router"

var (
	// RoutingOutcomesTotal mirrors the stats accumulator
	RoutingOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "outcomes_total",
			Help:      "Total number of routed submissions by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	// SubmissionsTotal counts what each tick did with the submissions it saw
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "submissions_total",
			Help:      "Total number of submissions seen by the scheduler by status",
		},
		[]string{"status"},
	)

	// TickDuration tracks how long a batch takes
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of scheduler ticks in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// NotificationsTotal tracks notification sink publishes
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "published_total",
			Help:      "Total number of notification publishes by status",
		},
		[]string{"status"},
	)

	// NotifierBreakerState is 0 closed, 1 half-open, 2 open
	NotifierBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "breaker_state",
			Help:      "State of the notification circuit breaker",
		},
	)

	// ManualMatchesTotal counts operator resolutions of the review queue
	ManualMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "manual_matches_total",
			Help:      "Total number of review entries resolved by an operator",
		},
		[]string{"category"},
	)
)

// RecordOutcome records one routed submission
func RecordOutcome(category, outcome string) {
	RoutingOutcomesTotal.WithLabelValues(category, outcome).Inc()
}

// RecordTick records a finished scheduler tick
func RecordTick(processed, skipped, failed int, durationSeconds float64) {
	SubmissionsTotal.WithLabelValues("processed").Add(float64(processed))
	SubmissionsTotal.WithLabelValues("skipped").Add(float64(skipped))
	SubmissionsTotal.WithLabelValues("failed").Add(float64(failed))
	TickDuration.Observe(durationSeconds)
}

// RecordNotification records a notification publish attempt
func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}

// RecordManualMatch records an operator resolution
func RecordManualMatch(category string) {
	ManualMatchesTotal.WithLabelValues(category).Inc()
}
