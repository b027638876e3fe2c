package rules

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindRedirect = "redirect"
	kindRewrite  = "rewrite"
	kindHeaders  = "headers"
)

// resolverMetrics contains Prometheus metrics for rule resolution.
type resolverMetrics struct {
	matchedTotal    *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
}

var (
	resolverMetricsInstance *resolverMetrics
	resolverMetricsOnce     sync.Once
)

// getResolverMetrics returns the singleton resolver metrics instance.
func getResolverMetrics() *resolverMetrics {
	resolverMetricsOnce.Do(func() {
		resolverMetricsInstance = &resolverMetrics{
			matchedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "edgerules",
					Subsystem: "rules",
					Name:      "matched_total",
					Help:      "Total number of rule matches by kind and phase",
				},
				[]string{"kind", "phase"},
			),
			resolveDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "edgerules",
					Subsystem: "rules",
					Name:      "resolve_duration_seconds",
					Help:      "Time spent resolving a rule list",
					Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
				},
				[]string{"kind"},
			),
		}
	})
	return resolverMetricsInstance
}

func (m *resolverMetrics) matched(kind, phase string) {
	m.matchedTotal.WithLabelValues(kind, phase).Inc()
}

func (m *resolverMetrics) observe(kind string, start time.Time) {
	m.resolveDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
