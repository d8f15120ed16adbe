package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks dependency resolver activity.
type Metrics struct {
	WaitersActive       prometheus.Gauge
	Resolved            prometheus.Counter
	Failed              prometheus.Counter
	DependencyUnhealthy prometheus.Counter
	DependencyRecovered prometheus.Counter
}

// NewMetrics registers resolver metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WaitersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "resolver",
			Name:      "waiters_active",
			Help:      "Dependency waiters currently registered.",
		}),
		Resolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "resolver",
			Name:      "resolved_total",
			Help:      "Waiters that resolved, fully or partially.",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "resolver",
			Name:      "failed_total",
			Help:      "Waiters that failed or timed out.",
		}),
		DependencyUnhealthy: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "resolver",
			Name:      "dependency_unhealthy_total",
			Help:      "Times a tracked dependency crossed the unhealthy threshold.",
		}),
		DependencyRecovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "resolver",
			Name:      "dependency_recovered_total",
			Help:      "Times a tracked dependency recovered from unhealthy.",
		}),
	}
}
