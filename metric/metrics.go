// Package metric exposes Prometheus instrumentation for the drift engine.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	EventsIndexed  *prometheus.CounterVec
	EventsSkipped  *prometheus.CounterVec
	SearchesIssued *prometheus.CounterVec
	LLMCalls       prometheus.Counter
	ParseFailures  prometheus.Counter
	AnswerDuration prometheus.Histogram
}

// New registers the engine collectors with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		EventsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_events_indexed_total",
			Help: "Vector events successfully indexed, by domain.",
		}, []string{"domain"}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_events_skipped_total",
			Help: "Records skipped during indexing, by domain and reason.",
		}, []string{"domain", "reason"}),
		SearchesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_searches_total",
			Help: "Vector searches issued, by domain.",
		}, []string{"domain"}),
		LLMCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_llm_calls_total",
			Help: "Completion calls issued by the reasoner.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_parse_failures_total",
			Help: "Model responses that failed strict and repaired parsing.",
		}),
		AnswerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftwatch_answer_duration_seconds",
			Help:    "End-to-end AnswerQuestion latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	reg.MustRegister(
		m.EventsIndexed,
		m.EventsSkipped,
		m.SearchesIssued,
		m.LLMCalls,
		m.ParseFailures,
		m.AnswerDuration,
	)
	return m
}
