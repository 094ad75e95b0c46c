// Package observability provides Prometheus metrics for the gift tracker.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gifttrack/gifttrack-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Sync      *metrics.SyncMetrics
	Analytics *metrics.AnalyticsMetrics
	MQTT      *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	syncMetrics, err := metrics.NewSyncMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	analyticsMetrics, err := metrics.NewAnalyticsMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Sync:      syncMetrics,
		Analytics: analyticsMetrics,
		MQTT:      mqttMetrics,
	}, nil
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.metricsHandler)
}

// metricsHandler is the HTTP handler for the /metrics endpoint.
func (m *Metrics) metricsHandler(w http.ResponseWriter, r *http.Request) {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
	h.ServeHTTP(w, r)
}
