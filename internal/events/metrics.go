package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the event bus's Prometheus instruments.
type Metrics struct {
	SubscribersActive prometheus.Gauge
	EventsTotal        *prometheus.CounterVec
	EventsDropped      prometheus.Counter
	DispatchSeconds    prometheus.Histogram
}

// NewMetrics registers the event bus metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubscribersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "events",
			Name:      "subscribers_active",
			Help:      "Number of active event bus subscribers.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Total events dispatched, by type.",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total events dropped due to a full channel.",
		}),
		DispatchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pluginforge",
			Subsystem: "events",
			Name:      "dispatch_seconds",
			Help:      "Time to fan an event out to all subscribers.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
