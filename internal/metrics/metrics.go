// Package metrics exposes Prometheus collectors for the search engine on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hypersearch"

// Outcome labels for searches and retrieval.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeCached   = "cached"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Metrics holds every collector. The zero value is not usable; call New.
type Metrics struct {
	registry *prometheus.Registry

	searches      *prometheus.CounterVec
	searchLatency *prometheus.HistogramVec
	agentTasks    *prometheus.CounterVec
	agentLatency  *prometheus.HistogramVec
	retrieval     *prometheus.CounterVec
	cache         *prometheus.CounterVec
	suggestions   prometheus.Counter
	suggestSize   prometheus.Histogram
	rateLimited   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total searches by search type and outcome",
			},
			[]string{"type", "outcome"},
		),
		searchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end search latency by search type",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"type"},
		),
		agentTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_tasks_total",
				Help:      "Agent tasks by modality and outcome",
			},
			[]string{"modality", "outcome"},
		),
		agentLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_task_duration_seconds",
				Help:      "Agent task latency by modality",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"modality"},
		),
		retrieval: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_requests_total",
				Help:      "Vector retrieval requests by outcome",
			},
			[]string{"outcome"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups by result (hit, miss, bypass)",
			},
			[]string{"result"},
		),
		suggestions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_requests_total",
			Help:      "Total suggestion requests",
		}),
		suggestSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggestions_returned",
			Help:      "Suggestions returned per request",
			Buckets:   prometheus.LinearBuckets(0, 1, 6),
		}),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by endpoint",
			},
			[]string{"endpoint"},
		),
	}

	m.registry.MustRegister(
		m.searches, m.searchLatency,
		m.agentTasks, m.agentLatency,
		m.retrieval, m.cache,
		m.suggestions, m.suggestSize,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSearch records one finished search.
func (m *Metrics) ObserveSearch(searchType, outcome string, d time.Duration) {
	m.searches.WithLabelValues(searchType, outcome).Inc()
	m.searchLatency.WithLabelValues(searchType).Observe(d.Seconds())
}

// ObserveAgentTask records one resolved agent task.
func (m *Metrics) ObserveAgentTask(modality, outcome string, d time.Duration) {
	m.agentTasks.WithLabelValues(modality, outcome).Inc()
	m.agentLatency.WithLabelValues(modality).Observe(d.Seconds())
}

// ObserveRetrieval records one retrieval call.
func (m *Metrics) ObserveRetrieval(outcome string) {
	m.retrieval.WithLabelValues(outcome).Inc()
}

// CacheHit counts a response cache hit.
func (m *Metrics) CacheHit() { m.cache.WithLabelValues("hit").Inc() }

// CacheMiss counts a response cache miss.
func (m *Metrics) CacheMiss() { m.cache.WithLabelValues("miss").Inc() }

// CacheBypass counts a lookup skipped because the cache was unavailable.
func (m *Metrics) CacheBypass() { m.cache.WithLabelValues("bypass").Inc() }

// ObserveSuggestions records one suggestion request returning n entries.
func (m *Metrics) ObserveSuggestions(n int) {
	m.suggestions.Inc()
	m.suggestSize.Observe(float64(n))
}

// RateLimited counts one rejected request.
func (m *Metrics) RateLimited(endpoint string) {
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

// RegisterPool exposes agent pool occupancy as gauges read at scrape time.
func (m *Metrics) RegisterPool(running, waiting, capacity func() int) {
	gauge := func(name, help string, fn func() int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}
	m.registry.MustRegister(
		gauge("agent_pool_running", "Agent workers currently running", running),
		gauge("agent_pool_waiting", "Agent tasks waiting for a worker", waiting),
		gauge("agent_pool_capacity", "Agent pool size", capacity),
	)
}
