package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks plugin state machine activity.
type Metrics struct {
	Transitions  *prometheus.CounterVec
	CurrentState *prometheus.GaugeVec
}

// NewMetrics registers state machine metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "host_state",
			Name:      "transitions_total",
			Help:      "Plugin state transitions, by from/to state.",
		}, []string{"from", "to"}),
		CurrentState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "host_state",
			Name:      "current",
			Help:      "Current lifecycle state per plugin (ordinal).",
		}, []string{"plugin"}),
	}
}
