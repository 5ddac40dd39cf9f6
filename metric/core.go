package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all engine-level metrics (not adapter-specific)
type Metrics struct {
	// Resolution metrics
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	RecordsTotal       *prometheus.CounterVec
	PathAttemptsTotal  *prometheus.CounterVec

	// Adapter metrics
	AdapterCallsTotal  *prometheus.CounterVec
	AdapterCallSeconds *prometheus.HistogramVec
	CircuitState       *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheWritesTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "executor",
				Name:      "resolutions_total",
				Help:      "Total resolve() calls by source/target ontology and status",
			},
			[]string{"source", "target", "status"},
		),

		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "idresolve",
				Subsystem: "executor",
				Name:      "resolution_duration_seconds",
				Help:      "End-to-end resolve() duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source", "target"},
		),

		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "executor",
				Name:      "records_total",
				Help:      "Mapping records produced by cardinality",
			},
			[]string{"cardinality"},
		),

		PathAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "executor",
				Name:      "path_attempts_total",
				Help:      "Candidate path executions by outcome",
			},
			[]string{"outcome"},
		),

		AdapterCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "adapter",
				Name:      "calls_total",
				Help:      "Adapter lookups by resource and status",
			},
			[]string{"resource", "status"},
		),

		AdapterCallSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "idresolve",
				Subsystem: "adapter",
				Name:      "call_duration_seconds",
				Help:      "Adapter lookup duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),

		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "idresolve",
				Subsystem: "adapter",
				Name:      "circuit_state",
				Help:      "Circuit breaker state per resource (0=closed, 1=open, 2=half-open)",
			},
			[]string{"resource"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Cache hits by resource",
			},
			[]string{"resource"},
		),

		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Cache misses by resource",
			},
			[]string{"resource"},
		),

		CacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "idresolve",
				Subsystem: "cache",
				Name:      "writes_total",
				Help:      "Cache writes by resource",
			},
			[]string{"resource"},
		),
	}
}

// collectors returns every core metric for bulk registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.RecordsTotal,
		m.PathAttemptsTotal,
		m.AdapterCallsTotal,
		m.AdapterCallSeconds,
		m.CircuitState,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheWritesTotal,
	}
}
