package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ingestion pipeline outcomes.
type Metrics struct {
	Accepted        *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	DurationSeconds prometheus.Histogram
	OptimizationRatio prometheus.Histogram
}

// NewMetrics registers ingestion metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Accepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "ingest",
			Name:      "accepted_total",
			Help:      "Total bundles accepted, by plugin name.",
		}, []string{"plugin"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "ingest",
			Name:      "rejected_total",
			Help:      "Total bundles rejected, by rejection step.",
		}, []string{"step"}),
		DurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pluginforge",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "End-to-end ingestion pipeline duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		OptimizationRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pluginforge",
			Subsystem: "ingest",
			Name:      "optimization_savings_ratio",
			Help:      "Savings ratio applied when optimization is accepted.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}
