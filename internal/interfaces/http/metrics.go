package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the service's Prometheus metrics on a private
// registry so tests can build as many as they like.
type MetricsRegistry struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	AnalysisDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec
	ProviderHealth   *prometheus.GaugeVec

	DecisionOutcomes *prometheus.CounterVec
	ActiveAnalyses   prometheus.Gauge
}

func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokentruth_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
			},
			[]string{"route", "status"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokentruth_requests_total",
				Help: "Total HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),

		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokentruth_analysis_duration_seconds",
				Help:    "Duration of one analysis dimension",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
			},
			[]string{"dimension"},
		),

		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokentruth_provider_errors_total",
				Help: "Structured errors surfaced per provider and code",
			},
			[]string{"provider", "code"},
		),

		ProviderHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tokentruth_provider_healthy",
				Help: "1 when the provider's circuit is closed",
			},
			[]string{"provider"},
		),

		DecisionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokentruth_decisions_total",
				Help: "Listing recommendations issued, by outcome",
			},
			[]string{"recommendation"},
		),

		ActiveAnalyses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tokentruth_active_analyses",
				Help: "Number of analyses currently in flight",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.RequestsTotal,
		m.AnalysisDuration,
		m.ProviderErrors,
		m.ProviderHealth,
		m.DecisionOutcomes,
		m.ActiveAnalyses,
	)

	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AnalysisTimer tracks one analysis dimension's wall time.
type AnalysisTimer struct {
	metrics   *MetricsRegistry
	dimension string
	start     time.Time
}

func (m *MetricsRegistry) StartAnalysisTimer(dimension string) *AnalysisTimer {
	m.ActiveAnalyses.Inc()
	return &AnalysisTimer{
		metrics:   m,
		dimension: dimension,
		start:     time.Now(),
	}
}

func (t *AnalysisTimer) Stop() {
	t.metrics.ActiveAnalyses.Dec()
	t.metrics.AnalysisDuration.WithLabelValues(t.dimension).Observe(time.Since(t.start).Seconds())
}

func (m *MetricsRegistry) RecordRequest(route, status string, duration time.Duration) {
	m.RequestDuration.WithLabelValues(route, status).Observe(duration.Seconds())
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

func (m *MetricsRegistry) RecordProviderError(provider, code string) {
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *MetricsRegistry) RecordDecision(recommendation string) {
	m.DecisionOutcomes.WithLabelValues(recommendation).Inc()
}

func (m *MetricsRegistry) SetProviderHealth(provider string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	m.ProviderHealth.WithLabelValues(provider).Set(val)
}
