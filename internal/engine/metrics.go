package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/conformity/internal/ir"
)

// Metrics exports orchestrator counters to prometheus.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	analysesActive   prometheus.Gauge
	analysesQueued   prometheus.Gauge
	cacheLookups     *prometheus.CounterVec
	fallbacksTotal   prometheus.Counter
	rejectedTotal    prometheus.Counter
}

// NewMetrics registers the orchestrator collectors with reg.
// Use prometheus.NewRegistry() in tests; registering twice on the same
// registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conformity_analyses_total",
				Help: "Total number of analyses by terminal state",
			},
			[]string{"state"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conformity_analysis_duration_seconds",
				Help:    "Processing time of finished analyses",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"state"},
		),
		analysesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conformity_analyses_active",
				Help: "Number of analyses in Processing",
			},
		),
		analysesQueued: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conformity_analyses_queued",
				Help: "Number of analyses waiting for a processing slot",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conformity_content_cache_lookups_total",
				Help: "Content cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		fallbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conformity_fallbacks_total",
				Help: "Custom rule and weight normalization fallbacks",
			},
		),
		rejectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conformity_analyses_rejected_total",
				Help: "Submissions rejected because the pending queue was full",
			},
		),
	}
}

func (m *Metrics) finished(state ir.AnalysisState, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(string(state)).Inc()
	m.analysisDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())
}

func (m *Metrics) load(running, pending int) {
	if m == nil {
		return
	}
	m.analysesActive.Set(float64(running))
	m.analysesQueued.Set(float64(pending))
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) fallbacks(n int) {
	if m == nil || n == 0 {
		return
	}
	m.fallbacksTotal.Add(float64(n))
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}
