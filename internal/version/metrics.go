package version

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks version lifecycle engine activity.
type Metrics struct {
	VersionsTotal   *prometheus.CounterVec
	PromotionsTotal *prometheus.CounterVec
}

// NewMetrics registers version-engine metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VersionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "version",
			Name:      "versions_total",
			Help:      "Total versions added, by plugin name.",
		}, []string{"plugin"}),
		PromotionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "version",
			Name:      "promotions_total",
			Help:      "Total version promotions, by plugin name.",
		}, []string{"plugin"}),
	}
}
