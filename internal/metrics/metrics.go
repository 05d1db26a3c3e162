// Package metrics exposes prometheus instrumentation for the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine reports into. All methods are
// nil-safe so instrumentation stays optional.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	modelCalls      *prometheus.CounterVec
	modelDuration   *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	eventsDropped   prometheus.Gauge
	synthesisQuality prometheus.Histogram
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ensemble",
			Name:      "requests_total",
			Help:      "Orchestration requests by strategy and terminal status.",
		}, []string{"strategy", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ensemble",
			Name:      "request_duration_seconds",
			Help:      "End-to-end orchestration latency by strategy.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"strategy"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ensemble",
			Name:      "model_calls_total",
			Help:      "Individual model calls by model and result status.",
		}, []string{"model", "status"}),
		modelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ensemble",
			Name:      "model_call_duration_seconds",
			Help:      "Individual model call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"model"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ensemble",
			Name:      "cache_hits_total",
			Help:      "Response cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ensemble",
			Name:      "cache_misses_total",
			Help:      "Response cache misses.",
		}),
		eventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ensemble",
			Name:      "events_dropped",
			Help:      "Events dropped on slow subscribers since start.",
		}),
		synthesisQuality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ensemble",
			Name:      "synthesis_quality",
			Help:      "Overall quality score of synthesized responses.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.modelCalls, m.modelDuration,
		m.cacheHits, m.cacheMisses, m.eventsDropped, m.synthesisQuality,
	)
	return m
}

// ObserveRequest records one finished orchestration.
func (m *Metrics) ObserveRequest(strategy, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(strategy, status).Inc()
	m.requestDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveModelCall records one model call.
func (m *Metrics) ObserveModelCall(model, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(model, status).Inc()
	m.modelDuration.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveCache records one cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// SetEventsDropped mirrors the gateway's drop counter.
func (m *Metrics) SetEventsDropped(n int64) {
	if m == nil {
		return
	}
	m.eventsDropped.Set(float64(n))
}

// ObserveQuality records a synthesized response's overall quality.
func (m *Metrics) ObserveQuality(q float64) {
	if m == nil {
		return
	}
	m.synthesisQuality.Observe(q)
}
