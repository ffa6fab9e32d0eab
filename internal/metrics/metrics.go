// Package metrics exposes scoring counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobmatch"

// Score kinds.
const (
	KindLocal    = "local"
	KindAI       = "ai"
	KindFallback = "fallback"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheInvalid = "invalid"
)

// AI request modes and outcomes.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"

	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalidJSON = "invalid_json"
)

// Metrics methods are safe on a nil receiver so components can run without
// instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	scores         *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	aiRequests     *prometheus.CounterVec
	rateLimitWaits prometheus.Counter
	batchDuration  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_total",
			Help:      "Total number of job scores produced",
		}, []string{"kind"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of score cache lookups by result",
		}, []string{"result"}),
		aiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Total number of remote scoring requests",
		}, []string{"mode", "outcome"}),
		rateLimitWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Total number of rate-limit backoff waits",
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_batch_duration_seconds",
			Help:      "Duration of AI batch scoring including retries",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900},
		}),
	}
}

func (m *Metrics) Score(kind string) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) AIRequest(mode, outcome string) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) RateLimitWait() {
	if m == nil {
		return
	}
	m.rateLimitWaits.Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// Registry is the registry every collector is registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
