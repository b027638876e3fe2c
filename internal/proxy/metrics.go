package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics contains Prometheus metrics for the edge engine.
type engineMetrics struct {
	requestsTotal      *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec
}

var (
	engineMetricsInstance *engineMetrics
	engineMetricsOnce     sync.Once
)

// getEngineMetrics returns the singleton engine metrics instance.
func getEngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetricsInstance = &engineMetrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "edgerules",
					Subsystem: "edge",
					Name:      "requests_total",
					Help:      "Total number of requests by final outcome and status code",
				},
				[]string{"outcome", "code"},
			),
			breakerTransitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "edgerules",
					Subsystem: "upstream",
					Name:      "breaker_transitions_total",
					Help:      "Circuit breaker state transitions per upstream host",
				},
				[]string{"host", "from", "to"},
			),
			breakerRejections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "edgerules",
					Subsystem: "upstream",
					Name:      "breaker_rejections_total",
					Help:      "Requests rejected by an open circuit breaker",
				},
				[]string{"host"},
			),
		}
	})
	return engineMetricsInstance
}
