package metacache

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics holds the Prometheus instruments for one sub-cache
// (InfoCache or EnumCache). Registration happens once in MetaCache.New
// when a registerer is supplied via WithMetrics; nil means "not wired",
// which every call site treats as "don't bother".
type cacheMetrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	evictions   prometheus.Counter
	gcCollected prometheus.Counter
	entries     prometheus.GaugeFunc
}

func newCacheMetrics(reg prometheus.Registerer, subsystem string, count func() int) *cacheMetrics {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivefscache", Subsystem: subsystem, Name: "hits_total",
			Help: "Cache lookups that found a valid entry.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivefscache", Subsystem: subsystem, Name: "misses_total",
			Help: "Cache lookups that found no valid entry.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivefscache", Subsystem: subsystem, Name: "evictions_total",
			Help: "Entries dropped to stay within max_count.",
		}),
		gcCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivefscache", Subsystem: subsystem, Name: "gc_collected_total",
			Help: "Entries dropped for exceeding max_time.",
		}),
	}
	m.entries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "archivefscache", Subsystem: subsystem, Name: "entries",
		Help: "Entries currently cached.",
	}, func() float64 { return float64(count()) })

	reg.MustRegister(m.hits, m.misses, m.evictions, m.gcCollected, m.entries)
	return m
}

// WithInfoCacheMetrics registers InfoCache instruments with reg.
func WithInfoCacheMetrics(reg prometheus.Registerer) InfoCacheOption {
	return func(c *InfoCache) {
		c.metrics = newCacheMetrics(reg, "info_cache", c.Count)
	}
}

// WithEnumCacheMetrics registers EnumCache instruments with reg.
func WithEnumCacheMetrics(reg prometheus.Registerer) EnumCacheOption {
	return func(c *EnumCache) {
		c.metrics = newCacheMetrics(reg, "enum_cache", c.Count)
	}
}
