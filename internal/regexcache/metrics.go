package regexcache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics contains Prometheus metrics for the regex cache.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

var (
	cacheMetricsInstance *cacheMetrics
	cacheMetricsOnce     sync.Once
)

// getCacheMetrics returns the singleton regex cache metrics instance.
// All caches in the process report into the same series.
func getCacheMetrics() *cacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheMetricsInstance = &cacheMetrics{
			hits: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "edgerules",
				Subsystem: "regex_cache",
				Name:      "hits_total",
				Help:      "Total number of regex cache hits",
			}),
			misses: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "edgerules",
				Subsystem: "regex_cache",
				Name:      "misses_total",
				Help:      "Total number of regex cache misses",
			}),
			evictions: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "edgerules",
				Subsystem: "regex_cache",
				Name:      "evictions_total",
				Help:      "Total number of regex cache evictions",
			}),
			size: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "edgerules",
				Subsystem: "regex_cache",
				Name:      "size",
				Help:      "Current number of entries in the regex cache",
			}),
		}
	})
	return cacheMetricsInstance
}
