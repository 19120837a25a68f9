package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "koodo_llm"

// Outcome label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics collects application metrics.
type Metrics interface {
	// RecordAttempt counts one provider invocation made by the retry executor
	RecordAttempt(provider, status string)

	// RecordFallback counts one fallback provider tried by the service manager
	RecordFallback(provider, status string)

	// RecordGeneration observes a completed manager operation
	RecordGeneration(operation, provider, status string, duration time.Duration, tokens int)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(string, string)                                {}
func (NopMetrics) RecordFallback(string, string)                               {}
func (NopMetrics) RecordGeneration(string, string, string, time.Duration, int) {}

// PrometheusMetrics implements Metrics with client_golang collectors
type PrometheusMetrics struct {
	attempts           *prometheus.CounterVec
	fallbacks          *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	tokens             *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempts_total",
				Help:      "Total number of provider attempts",
			},
			[]string{"provider", "status"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "fallbacks_total",
				Help:      "Total number of fallback providers tried",
			},
			[]string{"provider", "status"},
		),
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Total number of generation requests",
			},
			[]string{"operation", "provider", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Generation duration in seconds, retries and fallbacks included",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation", "provider"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "tokens_total",
				Help:      "Total number of tokens reported by providers",
			},
			[]string{"operation", "provider"},
		),
	}
}

// RecordAttempt implements Metrics
func (m *PrometheusMetrics) RecordAttempt(provider, status string) {
	m.attempts.WithLabelValues(provider, status).Inc()
}

// RecordFallback implements Metrics
func (m *PrometheusMetrics) RecordFallback(provider, status string) {
	m.fallbacks.WithLabelValues(provider, status).Inc()
}

// RecordGeneration implements Metrics
func (m *PrometheusMetrics) RecordGeneration(operation, provider, status string, duration time.Duration, tokens int) {
	m.generations.WithLabelValues(operation, provider, status).Inc()
	m.generationDuration.WithLabelValues(operation, provider).Observe(duration.Seconds())
	if tokens > 0 {
		m.tokens.WithLabelValues(operation, provider).Add(float64(tokens))
	}
}
