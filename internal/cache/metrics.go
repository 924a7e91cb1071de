package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the cache's prometheus collectors.
type Metrics struct {
	Hits            prometheus.Counter
	Misses          prometheus.Counter
	Compilations    *prometheus.CounterVec
	CompileErrors   *prometheus.CounterVec
	WriteErrors     prometheus.Counter
	CompileDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetkit_cache_hits_total",
			Help: "Bundle lookups answered without compiling",
		}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetkit_cache_misses_total",
			Help: "Bundle lookups that required a compilation",
		}),
		Compilations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetkit_compilations_total",
			Help: "Successful bundle compilations",
		}, []string{"kind"}),
		CompileErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetkit_compile_errors_total",
			Help: "Bundle compilations rejected by a stage",
		}, []string{"kind"}),
		WriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetkit_cache_write_errors_total",
			Help: "Compiled bundles that could not be persisted",
		}),
		CompileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assetkit_compile_duration_seconds",
			Help:    "Time spent compiling a bundle",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
	}
}
