package postgres

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks Postgres repository operations.
type Metrics struct {
	Operations        *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics registers registry/postgres metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "registry_postgres",
			Name:      "operations_total",
			Help:      "Total registry repository operations by kind.",
		}, []string{"operation"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "registry_postgres",
			Name:      "errors_total",
			Help:      "Total registry repository operation errors by kind.",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pluginforge",
			Subsystem: "registry_postgres",
			Name:      "operation_duration_seconds",
			Help:      "Registry repository operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
