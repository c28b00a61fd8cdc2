// internal/common/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cadio-client/internal/common/errors"
)

var (
	WorkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadio_workitems_total",
			Help: "Total number of work items by terminal status",
		},
		[]string{"status"},
	)

	PollAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadio_poll_attempts_total",
			Help: "Total number of work item status polls",
		},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadio_step_duration_seconds",
			Help:    "Duration of pipeline steps in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"step"},
	)

	StepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadio_step_failures_total",
			Help: "Total number of failed pipeline steps",
		},
		[]string{"step", "error_code"},
	)
)

// ObserveStep records a step's duration and, when err is set, a failure.
func ObserveStep(step string, start time.Time, err error) {
	StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	code := "INTERNAL_ERROR"
	if se, ok := errors.AsStandard(err); ok {
		code = string(se.Code)
	}
	StepFailures.WithLabelValues(step, code).Inc()
}
