package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains Prometheus metrics for MQTT publishing
type MQTTMetrics struct {
	registry *prometheus.Registry

	messagesPublishedTotal *prometheus.CounterVec
	publishErrorsTotal     *prometheus.CounterVec
	connectionStatusGauge  prometheus.Gauge
	reconnectsTotal        prometheus.Counter
}

// NewMQTTMetrics creates and registers new MQTT metrics
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() error {
	m.messagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_published_total",
			Help: "Total number of MQTT messages published",
		},
		[]string{"topic_kind"}, // topic_kind: delta, sold_out
	)

	m.publishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_publish_errors_total",
			Help: "Total number of MQTT publish errors",
		},
		[]string{"error_type"},
	)

	m.connectionStatusGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mqtt_connection_status",
		Help: "Current MQTT connection status (1 connected, 0 disconnected)",
	})

	m.reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_reconnects_total",
		Help: "Total number of MQTT reconnect attempts",
	})

	return nil
}

// Describe implements the Collector interface
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.messagesPublishedTotal.Describe(ch)
	m.publishErrorsTotal.Describe(ch)
	m.connectionStatusGauge.Describe(ch)
	m.reconnectsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.messagesPublishedTotal.Collect(ch)
	m.publishErrorsTotal.Collect(ch)
	m.connectionStatusGauge.Collect(ch)
	m.reconnectsTotal.Collect(ch)
}

// RecordMessagePublished records one published message
func (m *MQTTMetrics) RecordMessagePublished(topicKind string) {
	m.messagesPublishedTotal.WithLabelValues(topicKind).Inc()
}

// RecordPublishError records a publish failure
func (m *MQTTMetrics) RecordPublishError(errorType string) {
	m.publishErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateConnectionStatus updates the connection gauge
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.connectionStatusGauge.Set(1)
	} else {
		m.connectionStatusGauge.Set(0)
	}
}

// RecordReconnect records a reconnect attempt
func (m *MQTTMetrics) RecordReconnect() {
	m.reconnectsTotal.Inc()
}
