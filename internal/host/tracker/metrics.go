package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks resource-tracker sweep activity.
type Metrics struct {
	TrackedActive prometheus.Gauge
	Cleanups      prometheus.Counter
	SweepsRun     prometheus.Counter
	ForcedSweeps  prometheus.Counter
}

// NewMetrics registers tracker metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TrackedActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "tracker",
			Name:      "tracked_active",
			Help:      "Plugins currently tracked for resource cleanup.",
		}),
		Cleanups: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "tracker",
			Name:      "cleanups_total",
			Help:      "Plugin resource cleanups performed.",
		}),
		SweepsRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "tracker",
			Name:      "sweeps_total",
			Help:      "Scheduled sweep passes run.",
		}),
		ForcedSweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "tracker",
			Name:      "forced_sweeps_total",
			Help:      "Sweeps forced by heap pressure exceeding the threshold.",
		}),
	}
}
