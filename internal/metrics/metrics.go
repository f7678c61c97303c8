// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts classified turns by severity bucket.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlog_turns_total",
			Help: "Classified user turns by severity bucket",
		},
		[]string{"severity"},
	)

	// AssignmentsTotal counts sessions assigned to each variant.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlog_assignments_total",
			Help: "Sessions assigned to each variant",
		},
		[]string{"variant"},
	)

	// CrisisExclusionsTotal counts sessions excluded by the crisis protocol.
	CrisisExclusionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlog_crisis_exclusions_total",
			Help: "Sessions excluded from the experiment by the crisis protocol",
		},
	)

	// DecisionsTotal counts recorded decisions by variant and outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlog_decisions_total",
			Help: "Recorded conversion decisions",
		},
		[]string{"variant", "outcome"},
	)

	// InputErrorsTotal counts inputs that fell back to a neutral classification.
	InputErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlog_input_errors_total",
			Help: "Inputs classified as neutral because they were malformed",
		},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlog_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindlog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordTurn records a classified turn.
func RecordTurn(severity string) {
	TurnsTotal.WithLabelValues(severity).Inc()
}

// RecordAssignment records a new session entering a variant.
func RecordAssignment(variant string) {
	AssignmentsTotal.WithLabelValues(variant).Inc()
}

func RecordCrisisExclusion() {
	CrisisExclusionsTotal.Inc()
}

// RecordDecision records a decision outcome for a variant.
func RecordDecision(variant string, converted bool) {
	outcome := "declined"
	if converted {
		outcome = "converted"
	}
	DecisionsTotal.WithLabelValues(variant, outcome).Inc()
}

func RecordInputError() {
	InputErrorsTotal.Inc()
}

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}
