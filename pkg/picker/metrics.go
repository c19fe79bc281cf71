package picker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portalflow",
		Subsystem: "picker",
		Name:      "picks_total",
		Help:      "Selectors captured by the element picker.",
	})
	metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalflow",
		Subsystem: "picker",
		Name:      "sessions_total",
		Help:      "Finished picker sessions by end reason.",
	}, []string{"reason"})
)

// PicksCounter exposes the picks counter for tests.
func PicksCounter() prometheus.Counter { return metricPicks }
