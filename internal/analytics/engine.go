package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/errors"
	"github.com/gifttrack/gifttrack-go/internal/ledger"
	"github.com/gifttrack/gifttrack-go/internal/logging"
	"github.com/gifttrack/gifttrack-go/internal/observability/metrics"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("analytics")
	if logger == nil {
		logger = slog.Default().With("service", "analytics")
	}
}

// Engine computes gift statistics from the history ledger and maintains the
// prediction cache. Build one per process and share it.
type Engine struct {
	ds       datastore.Interface
	ledger   *ledger.Service
	strategy Strategy
	metrics  *metrics.AnalyticsMetrics

	windowHours int
	staleness   time.Duration

	// refreshing holds one in-flight marker per gift id so a burst of stale
	// reads triggers a single recomputation
	refreshing sync.Map

	// now is swapped in tests
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy replaces the default heuristic prediction strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithMetrics attaches Prometheus metrics to the engine.
func WithMetrics(m *metrics.AnalyticsMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an analytics engine over the given datastore.
// windowHours bounds the trailing ledger window; staleness gates prediction
// recomputation.
func NewEngine(ds datastore.Interface, windowHours int, staleness time.Duration, opts ...Option) *Engine {
	engine := &Engine{
		ds:          ds,
		ledger:      ledger.NewService(ds),
		strategy:    HeuristicStrategy{},
		windowHours: windowHours,
		staleness:   staleness,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// GetStats assembles the analytics payload of one gift. The hourly stats,
// peak hour, purchase rate and trend are always computed fresh from the
// ledger; the prediction follows the staleness policy: a cached prediction
// younger than the threshold is returned as-is, an older one is returned
// immediately while a recomputation runs in the background for later reads.
// Computation failures degrade to null prediction markers, never errors.
func (e *Engine) GetStats(giftID string) (*Stats, error) {
	gift, err := e.ds.GetGift(giftID)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryNotFound).
			Context("gift_id", giftID).
			Component("analytics").
			Build()
	}

	now := e.now()
	entries, err := e.window(giftID, now)
	if err != nil {
		logger.Error("Failed to read ledger window", "gift_id", giftID, "error", err)
		entries = nil
	}

	buckets := ledger.BucketByHour(toHistory(entries))
	peakHour, peakCount := peak(buckets)

	stats := &Stats{
		GiftID:       giftID,
		CurrentCount: gift.Remaining,
		TotalCount:   gift.Total,
		Status:       gift.Status,
		PeakHour:     peakHour,
		PeakCount:    peakCount,
		PurchaseRate: windowRate(entries),
		Trend:        classifyTrend(entries),
		HourlyStats:  hourlyStats(buckets),
		LastUpdated:  gift.LastUpdated,
	}

	stats.Prediction = e.predictionFor(&gift, now)

	if e.metrics != nil {
		e.metrics.RecordStatsRequest()
	}

	return stats, nil
}

// predictionFor applies the staleness policy. Never blocks on recomputation.
func (e *Engine) predictionFor(gift *datastore.Gift, now time.Time) *Prediction {
	cached, err := e.ds.LatestPrediction(gift.ID)
	if err != nil {
		logger.Error("Failed to load cached prediction", "gift_id", gift.ID, "error", err)
		return nil
	}

	if cached != nil && now.Sub(cached.CreatedAt) < e.staleness {
		return fromRecord(cached)
	}

	// Stale or missing: serve what we have and refresh in the background
	e.triggerRefresh(gift.ID)

	if cached != nil {
		return fromRecord(cached)
	}
	return nil
}

// triggerRefresh starts one background recomputation per gift; concurrent
// triggers for the same gift while one is in flight are dropped.
func (e *Engine) triggerRefresh(giftID string) {
	if _, loaded := e.refreshing.LoadOrStore(giftID, struct{}{}); loaded {
		return
	}

	go func() {
		defer e.refreshing.Delete(giftID)
		if err := e.RefreshPrediction(giftID); err != nil {
			logger.Error("Prediction refresh failed", "gift_id", giftID, "error", err)
		}
	}()
}

// RefreshPrediction recomputes and stores the prediction of one gift.
// Exposed for the sync path, which refreshes predictions eagerly after a
// catalog update.
func (e *Engine) RefreshPrediction(giftID string) error {
	gift, err := e.ds.GetGift(giftID)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryAnalytics).
			Context("gift_id", giftID).
			Component("analytics").
			Build()
	}

	now := e.now()
	entries, err := e.window(giftID, now)
	if err != nil {
		return err
	}

	prediction := e.strategy.Predict(PredictionInput{
		GiftID:    giftID,
		Remaining: gift.Remaining,
		Total:     gift.Total,
		Entries:   entries,
		Now:       now,
	})

	data, err := json.Marshal(prediction.Data)
	if err != nil {
		data = []byte("{}")
	}

	record := &datastore.GiftPrediction{
		GiftID:     giftID,
		SoldOutAt:  prediction.SoldOutAt,
		Confidence: prediction.Confidence,
		Data:       string(data),
		CreatedAt:  now,
	}
	if err := e.ds.SavePrediction(record); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_id", giftID).
			Component("analytics").
			Build()
	}

	if e.metrics != nil {
		e.metrics.RecordPrediction(prediction.Confidence)
	}

	logger.Debug("Prediction refreshed",
		"gift_id", giftID,
		"confidence", prediction.Confidence,
		"has_estimate", prediction.SoldOutAt != nil)

	return nil
}

// window loads the trailing ledger window as strategy entry points.
func (e *Engine) window(giftID string, now time.Time) ([]entryPoint, error) {
	since := now.Add(-time.Duration(e.windowHours) * time.Hour)
	entries, err := e.ledger.Window(giftID, since, now)
	if err != nil {
		return nil, err
	}

	points := make([]entryPoint, len(entries))
	for i := range entries {
		points[i] = entryPoint{
			Timestamp: entries[i].Timestamp,
			Remaining: entries[i].RemainingCount,
			Delta:     entries[i].Delta,
		}
	}
	return points, nil
}

// GlobalStats summarizes the whole catalog for the overview endpoint.
type GlobalStats struct {
	TotalGifts   int64          `json:"total_gifts"`
	ActiveGifts  int            `json:"active_gifts"`
	SoldOutGifts int            `json:"sold_out_gifts"`
	Trends       map[string]int `json:"trends"`
	LastUpdated  time.Time      `json:"last_updated"`
}

// GetGlobalStats aggregates per-gift trends and status counts.
func (e *Engine) GetGlobalStats() (*GlobalStats, error) {
	gifts, err := e.ds.GetAllGifts()
	if err != nil {
		return nil, err
	}

	total, err := e.ds.CountGifts()
	if err != nil {
		return nil, err
	}

	stats := &GlobalStats{
		TotalGifts: total,
		Trends:     map[string]int{},
	}

	now := e.now()
	for i := range gifts {
		gift := &gifts[i]
		switch gift.Status {
		case datastore.StatusSoldOut:
			stats.SoldOutGifts++
		default:
			stats.ActiveGifts++
		}
		if gift.LastUpdated.After(stats.LastUpdated) {
			stats.LastUpdated = gift.LastUpdated
		}

		entries, err := e.window(gift.ID, now)
		if err != nil {
			logger.Error("Skipping gift in global stats", "gift_id", gift.ID, "error", err)
			continue
		}
		stats.Trends[classifyTrend(entries)]++
	}

	return stats, nil
}

func toHistory(entries []entryPoint) []datastore.GiftHistory {
	history := make([]datastore.GiftHistory, len(entries))
	for i := range entries {
		history[i] = datastore.GiftHistory{
			Delta:     entries[i].Delta,
			Timestamp: entries[i].Timestamp,
		}
	}
	return history
}

// peak returns the hour bucket with the largest purchase total, earliest
// hour winning ties.
func peak(buckets [ledger.HoursPerDay]int) (string, int) {
	peakHour, peakCount := 0, 0
	for hour, count := range buckets {
		if count > peakCount {
			peakHour, peakCount = hour, count
		}
	}
	return fmt.Sprintf("%02d:00", peakHour), peakCount
}

// hourlyStats renders the buckets as a zero-filled 24-entry list.
func hourlyStats(buckets [ledger.HoursPerDay]int) []HourlyStat {
	stats := make([]HourlyStat, ledger.HoursPerDay)
	for hour, count := range buckets {
		stats[hour] = HourlyStat{
			Hour:  fmt.Sprintf("%02d:00", hour),
			Count: count,
		}
	}
	return stats
}

// fromRecord rehydrates a stored prediction record.
func fromRecord(record *datastore.GiftPrediction) *Prediction {
	prediction := &Prediction{
		SoldOutAt:  record.SoldOutAt,
		Confidence: record.Confidence,
		CreatedAt:  record.CreatedAt,
	}
	if record.Data != "" {
		if err := json.Unmarshal([]byte(record.Data), &prediction.Data); err != nil {
			logger.Warn("Malformed stored prediction data", "gift_id", record.GiftID, "error", err)
		}
	}
	return prediction
}
