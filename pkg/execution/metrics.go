package execution

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalflow",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Workflow runs by terminal status (idle means stopped).",
	}, []string{"status"})

	metricSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalflow",
		Subsystem: "steps",
		Name:      "total",
		Help:      "Executed steps by type and outcome.",
	}, []string{"type", "outcome"})

	metricStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portalflow",
		Subsystem: "steps",
		Name:      "duration_seconds",
		Help:      "Step execution latency.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"type"})

	metricActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "portalflow",
		Subsystem: "runs",
		Name:      "active",
		Help:      "Runs currently executing (0 or 1).",
	})
)

func observeRun(status Status) {
	metricRuns.WithLabelValues(string(status)).Inc()
}

func observeStep(stepType string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metricSteps.WithLabelValues(stepType, outcome).Inc()
	metricStepDuration.WithLabelValues(stepType).Observe(time.Since(started).Seconds())
}

// RunsCounter exposes the runs counter for tests and dashboards.
func RunsCounter() *prometheus.CounterVec { return metricRuns }
