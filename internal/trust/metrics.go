package trust

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the trust engine's Prometheus instruments.
type Metrics struct {
	AssignmentsTotal *prometheus.CounterVec
	ViolationsTotal  *prometheus.CounterVec
}

// NewMetrics registers the trust engine metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AssignmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "trust",
			Name:      "assignments_total",
			Help:      "Trust level assignments, by resulting level.",
		}, []string{"level"}),
		ViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "trust",
			Name:      "violations_total",
			Help:      "Recorded trust violations, by severity.",
		}, []string{"severity"}),
	}
}
