// Package metrics exposes Prometheus counters for the remediation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts repository sweeps.
	ScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "scans_total",
			Help:      "Total number of repository scans performed",
		},
	)

	// FailuresDetected counts failed workflow runs found by scans.
	FailuresDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "failures_detected_total",
			Help:      "Total number of failed workflow runs detected",
		},
	)

	// Dispositions counts terminal pipeline states per processed failure.
	// Labels: state (resolved, pending_verification, escalated, ...)
	Dispositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "dispositions_total",
			Help:      "Terminal remediation states of processed failures",
		},
		[]string{"state"},
	)

	// Classifications counts diagnoses per category.
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "classifications_total",
			Help:      "Failure classifications by category",
		},
		[]string{"category"},
	)

	// FixCommits counts attempted fix commits.
	// Labels: result (success, error)
	FixCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "fix_commits_total",
			Help:      "Fix commits attempted on working branches",
		},
		[]string{"result"},
	)

	// RetryTriggers counts rerun triggers.
	// Labels: result (success, error)
	RetryTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "retry_triggers_total",
			Help:      "Workflow rerun triggers",
		},
		[]string{"result"},
	)

	// Escalations counts issue escalations.
	// Labels: result (success, error)
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipemedic",
			Name:      "escalations_total",
			Help:      "Failure escalations to GitHub issues",
		},
		[]string{"result"},
	)
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ResultLabel maps a boolean outcome to its label value.
func ResultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultError
}
