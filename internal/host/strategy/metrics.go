package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks loading-strategy activity.
type Metrics struct {
	PluginsLoaded  prometheus.Counter
	PluginsFailed  prometheus.Counter
	CyclesDetected prometheus.Counter
}

// NewMetrics registers strategy metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PluginsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "strategy",
			Name:      "plugins_loaded_total",
			Help:      "Plugins successfully loaded across all strategy runs.",
		}),
		PluginsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "strategy",
			Name:      "plugins_failed_total",
			Help:      "Plugins that failed dependency resolution or instantiation.",
		}),
		CyclesDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "strategy",
			Name:      "cycles_detected_total",
			Help:      "Dependency cycles detected during batch computation.",
		}),
	}
}
