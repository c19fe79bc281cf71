package roster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricImports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "portalflow",
	Subsystem: "roster",
	Name:      "imports_total",
	Help:      "Roster imports by outcome.",
}, []string{"outcome"})

// ImportsCounter exposes the import counter for tests.
func ImportsCounter() *prometheus.CounterVec { return metricImports }
