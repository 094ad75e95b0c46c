package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalyticsMetrics contains Prometheus metrics for the analytics engine
type AnalyticsMetrics struct {
	registry *prometheus.Registry

	statsRequestsTotal       prometheus.Counter
	predictionsComputedTotal prometheus.Counter
	predictionConfidence     prometheus.Histogram
	predictionErrorsTotal    *prometheus.CounterVec
}

// NewAnalyticsMetrics creates and registers new analytics metrics
func NewAnalyticsMetrics(registry *prometheus.Registry) (*AnalyticsMetrics, error) {
	m := &AnalyticsMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AnalyticsMetrics) initMetrics() error {
	m.statsRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_stats_requests_total",
			Help: "Total number of stats payloads assembled",
		},
	)

	m.predictionsComputedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_predictions_computed_total",
			Help: "Total number of prediction recomputations",
		},
	)

	m.predictionConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_prediction_confidence",
			Help:    "Confidence score distribution of computed predictions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	m.predictionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_prediction_errors_total",
			Help: "Total number of failed prediction refreshes",
		},
		[]string{"error_type"},
	)

	return nil
}

// Describe implements the Collector interface
func (m *AnalyticsMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.statsRequestsTotal.Describe(ch)
	m.predictionsComputedTotal.Describe(ch)
	m.predictionConfidence.Describe(ch)
	m.predictionErrorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *AnalyticsMetrics) Collect(ch chan<- prometheus.Metric) {
	m.statsRequestsTotal.Collect(ch)
	m.predictionsComputedTotal.Collect(ch)
	m.predictionConfidence.Collect(ch)
	m.predictionErrorsTotal.Collect(ch)
}

// RecordStatsRequest records one assembled stats payload
func (m *AnalyticsMetrics) RecordStatsRequest() {
	m.statsRequestsTotal.Inc()
}

// RecordPrediction records one prediction recomputation and its confidence
func (m *AnalyticsMetrics) RecordPrediction(confidence float64) {
	m.predictionsComputedTotal.Inc()
	m.predictionConfidence.Observe(confidence)
}

// RecordPredictionError records a failed prediction refresh
func (m *AnalyticsMetrics) RecordPredictionError(errorType string) {
	m.predictionErrorsTotal.WithLabelValues(errorType).Inc()
}
