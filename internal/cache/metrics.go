package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the validation cache's Prometheus instruments.
type Metrics struct {
	Hits   prometheus.Counter
	Misses prometheus.Counter
	Size   prometheus.Gauge
}

// NewMetrics registers the validation cache metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "validation_cache",
			Name:      "hits_total",
			Help:      "Validation cache hits.",
		}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "validation_cache",
			Name:      "misses_total",
			Help:      "Validation cache misses.",
		}),
		Size: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "validation_cache",
			Name:      "size",
			Help:      "Current number of cached verdicts.",
		}),
	}
}
