// Package metrics provides Prometheus metric collectors for the gift
// tracker services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains Prometheus metrics for catalog sync operations
type SyncMetrics struct {
	registry *prometheus.Registry

	syncCyclesTotal    *prometheus.CounterVec
	syncCycleDuration  prometheus.Histogram
	syncSkippedTotal   *prometheus.CounterVec
	unitFetchesTotal   *prometheus.CounterVec
	giftUpdatesTotal   *prometheus.CounterVec
	archivesTotal      prometheus.Counter
	giftRemainingGauge *prometheus.GaugeVec
}

// NewSyncMetrics creates and registers new sync metrics
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() error {
	m.syncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftsync_cycles_total",
			Help: "Total number of catalog sync cycles",
		},
		[]string{"status"}, // status: success, error
	)

	m.syncCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "giftsync_cycle_duration_seconds",
			Help: "Time taken for one full catalog sync cycle",
			// Cycles span seconds to many minutes depending on catalog size
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	m.syncSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftsync_skipped_total",
			Help: "Total number of skipped sync invocations",
		},
		[]string{"reason"}, // reason: busy, fresh
	)

	m.unitFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftsync_unit_fetches_total",
			Help: "Total number of per-unit fetches",
		},
		[]string{"gift_type", "status"}, // status: success, missing, error
	)

	m.giftUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftsync_gift_updates_total",
			Help: "Total number of gift snapshot upserts",
		},
		[]string{"gift_type", "status"},
	)

	m.archivesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giftsync_archives_total",
			Help: "Total number of snapshot versions archived",
		},
	)

	m.giftRemainingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giftsync_gift_remaining",
			Help: "Remaining unit count per tracked gift",
		},
		[]string{"gift_type"},
	)

	return nil
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.syncCyclesTotal.Describe(ch)
	m.syncCycleDuration.Describe(ch)
	m.syncSkippedTotal.Describe(ch)
	m.unitFetchesTotal.Describe(ch)
	m.giftUpdatesTotal.Describe(ch)
	m.archivesTotal.Describe(ch)
	m.giftRemainingGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.syncCyclesTotal.Collect(ch)
	m.syncCycleDuration.Collect(ch)
	m.syncSkippedTotal.Collect(ch)
	m.unitFetchesTotal.Collect(ch)
	m.giftUpdatesTotal.Collect(ch)
	m.archivesTotal.Collect(ch)
	m.giftRemainingGauge.Collect(ch)
}

// RecordSyncCycle records a completed sync cycle and its duration
func (m *SyncMetrics) RecordSyncCycle(status string, durationSeconds float64) {
	m.syncCyclesTotal.WithLabelValues(status).Inc()
	m.syncCycleDuration.Observe(durationSeconds)
}

// RecordSyncSkipped records a skipped sync invocation
func (m *SyncMetrics) RecordSyncSkipped(reason string) {
	m.syncSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordUnitFetch records one per-unit fetch attempt
func (m *SyncMetrics) RecordUnitFetch(giftType, status string) {
	m.unitFetchesTotal.WithLabelValues(giftType, status).Inc()
}

// RecordGiftUpdate records one gift snapshot upsert
func (m *SyncMetrics) RecordGiftUpdate(giftType, status string) {
	m.giftUpdatesTotal.WithLabelValues(giftType, status).Inc()
}

// RecordArchive records one archived snapshot version
func (m *SyncMetrics) RecordArchive() {
	m.archivesTotal.Inc()
}

// UpdateGiftRemaining updates the remaining-count gauge of one gift
func (m *SyncMetrics) UpdateGiftRemaining(giftType string, remaining int) {
	m.giftRemainingGauge.WithLabelValues(giftType).Set(float64(remaining))
}
