package browser

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

var (
	metricActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalflow",
		Subsystem: "browser",
		Name:      "actions_total",
		Help:      "Browser driver operations by op and outcome.",
	}, []string{"op", "outcome"})
	metricActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portalflow",
		Subsystem: "browser",
		Name:      "action_duration_seconds",
		Help:      "Latency of browser driver operations.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
	}, []string{"op"})
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "portalflow",
		Subsystem: "browser",
		Name:      "sessions_active",
		Help:      "Number of open browser sessions.",
	})
)

// outcome buckets an error into a low-cardinality label.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch pferrors.GetCode(err) {
	case pferrors.ErrCodeSelectorNotFound:
		return "selector_not_found"
	case pferrors.ErrCodeNavigation:
		return "navigation"
	case pferrors.ErrCodeStopped:
		return "cancelled"
	case pferrors.ErrCodeExport:
		return "no_download"
	default:
		return "error"
	}
}

func recordAction(op Op, started time.Time, err error) {
	metricActions.WithLabelValues(string(op), outcome(err)).Inc()
	metricActionLatency.WithLabelValues(string(op)).Observe(time.Since(started).Seconds())
}

func recordSessionOpened() { metricActiveSessions.Inc() }
func recordSessionClosed() { metricActiveSessions.Dec() }

// ActionsCounter exposes the action counter for assertions in tests.
func ActionsCounter() *prometheus.CounterVec { return metricActions }
