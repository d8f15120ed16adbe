package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks orchestrator-level scan/load/rollback activity.
type Metrics struct {
	DiscoveryErrors *prometheus.CounterVec
	LoadsSucceeded  prometheus.Counter
	LoadsFailed     prometheus.Counter
	Rollbacks       prometheus.Counter
	ActivePlugins   prometheus.Gauge
}

// NewMetrics registers orchestrator metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DiscoveryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "orchestrator",
			Name:      "discovery_errors_total",
			Help:      "Plugin discovery failures by error kind.",
		}, []string{"kind"}),
		LoadsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "orchestrator",
			Name:      "loads_succeeded_total",
			Help:      "Plugins successfully instantiated and transitioned to LOADED.",
		}),
		LoadsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "orchestrator",
			Name:      "loads_failed_total",
			Help:      "Plugin instantiation or validation failures.",
		}),
		Rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "orchestrator",
			Name:      "rollbacks_total",
			Help:      "Scans rolled back to the last known-good snapshot.",
		}),
		ActivePlugins: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "orchestrator",
			Name:      "active_plugins",
			Help:      "Plugins currently active (loaded) on this host.",
		}),
	}
}
