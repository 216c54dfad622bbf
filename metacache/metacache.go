package metacache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetaCache bundles one InfoCache and one EnumCache behind a single
// functional-options constructor, the same shape the teacher's own Cache
// uses for its options — generalized here to configure two caches and an
// optional background reporter instead of one.
type MetaCache struct {
	Info *InfoCache
	Enum *EnumCache

	reporter *StatsReporter
}

type metaCacheConfig struct {
	logger         *zap.Logger
	registerer     prometheus.Registerer
	reportInterval time.Duration
}

// Option configures a MetaCache at construction time.
type Option func(*metaCacheConfig)

// WithLogger attaches a zap logger used by both sub-caches and the
// stats reporter.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *metaCacheConfig) { cfg.logger = l }
}

// WithMetrics registers both sub-caches' Prometheus instruments with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *metaCacheConfig) { cfg.registerer = reg }
}

// WithReportInterval starts a background goroutine that logs (and, if
// WithMetrics was also given, has already pushed via Prometheus) a stats
// snapshot every interval. Zero disables it, the default.
func WithReportInterval(d time.Duration) Option {
	return func(cfg *metaCacheConfig) { cfg.reportInterval = d }
}

// New builds a MetaCache with the given per-cache size/TTL limits.
func New(infoMaxCount int, infoMaxTime time.Duration, enumMaxCount int, enumMaxTime time.Duration, opts ...Option) *MetaCache {
	cfg := metaCacheConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var infoOpts []InfoCacheOption
	var enumOpts []EnumCacheOption
	infoOpts = append(infoOpts, WithInfoCacheLogger(cfg.logger))
	enumOpts = append(enumOpts, WithEnumCacheLogger(cfg.logger))
	if cfg.registerer != nil {
		infoOpts = append(infoOpts, WithInfoCacheMetrics(cfg.registerer))
		enumOpts = append(enumOpts, WithEnumCacheMetrics(cfg.registerer))
	}

	m := &MetaCache{
		Info: NewInfoCache(infoMaxCount, infoMaxTime, infoOpts...),
		Enum: NewEnumCache(enumMaxCount, enumMaxTime, enumOpts...),
	}

	if cfg.reportInterval > 0 {
		m.reporter = newStatsReporter(m, cfg.reportInterval, cfg.logger)
	}

	return m
}

// Close stops the background stats reporter, if one is running. Safe to
// call even if WithReportInterval was never used.
func (m *MetaCache) Close() {
	if m.reporter != nil {
		m.reporter.Stop()
	}
}
