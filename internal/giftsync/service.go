// Package giftsync keeps the local gift catalog in step with the upstream
// source: throttled per-unit fetches, owner aggregation, snapshot
// versioning/archiving and ledger bookkeeping.
package giftsync

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/errors"
	"github.com/gifttrack/gifttrack-go/internal/ledger"
	"github.com/gifttrack/gifttrack-go/internal/logging"
	"github.com/gifttrack/gifttrack-go/internal/observability/metrics"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

// Package-level logger specific to the sync service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "giftsync.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "giftsync", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize giftsync file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "giftsync")
		closeLogger = func() error { return nil }
	}
}

// Fetcher is the upstream source of gift data.
type Fetcher interface {
	GetUnit(ctx context.Context, giftType string, num int) (*telegram.UnitRecord, error)
	GetAvailableGifts(ctx context.Context) ([]telegram.ListingGift, error)
}

// DeltaPublisher receives catalog change events, typically backed by MQTT.
type DeltaPublisher interface {
	PublishDelta(ctx context.Context, entry *datastore.GiftHistory) error
	PublishSoldOut(ctx context.Context, gift *datastore.Gift) error
}

// Notifier receives user-facing stock alerts.
type Notifier interface {
	NotifySoldOut(gift *datastore.Gift)
	NotifyLowStock(gift *datastore.Gift, percentLeft float64)
}

// Service orchestrates catalog update cycles. One instance per process;
// cycles are serialized by an atomic busy guard.
type Service struct {
	ds       datastore.Interface
	client   Fetcher
	ledger   *ledger.Service
	settings *conf.Settings
	metrics  *metrics.SyncMetrics

	publisher DeltaPublisher
	notifier  Notifier

	// onUpdated runs after each successful per-type upsert
	onUpdated func(giftID string)

	busy atomic.Bool

	// now is swapped in tests
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches Prometheus metrics to the service.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher attaches a change-event publisher.
func WithPublisher(p DeltaPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithNotifier attaches a stock alert notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithUpdateHook attaches a callback that runs after each successful gift
// type upsert, with the gift id. Used to refresh predictions eagerly.
func WithUpdateHook(fn func(giftID string)) Option {
	return func(s *Service) { s.onUpdated = fn }
}

// NewService creates a sync service over the given datastore and source
// client.
func NewService(settings *conf.Settings, ds datastore.Interface, client Fetcher, opts ...Option) *Service {
	service := &Service{
		ds:       ds,
		client:   client,
		ledger:   ledger.NewService(ds),
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ShouldUpdate reports whether a new update cycle is due: no gifts are
// tracked yet, a configured type has never been fetched, or the most recent
// update is older than the configured interval. Elapsed time exactly at the
// interval does not trigger an update.
func (s *Service) ShouldUpdate() (bool, error) {
	count, err := s.ds.CountGifts()
	if err != nil {
		return false, errors.New(err).
			Category(errors.CategoryDatabase).
			Component("giftsync").
			Build()
	}
	if count == 0 {
		return true, nil
	}

	// New configured types not yet in the catalog force a cycle
	for _, giftType := range s.settings.Sync.Types {
		if _, err := s.ds.GetGift(giftType); err != nil {
			logger.Debug("New gift type detected", "gift_type", giftType)
			return true, nil
		}
	}

	latest, err := s.ds.LatestUpdate()
	if err != nil {
		return false, errors.New(err).
			Category(errors.CategoryDatabase).
			Component("giftsync").
			Build()
	}

	interval := time.Duration(s.settings.Sync.Interval) * time.Minute
	return s.now().Sub(latest) > interval, nil
}

// UpdateAll runs one update cycle over every configured gift type plus the
// simple listing variant. A cycle already in flight makes this call a no-op
// with a warning; skipped triggers are not queued. Type-level failures are
// isolated: the cycle continues with the remaining types.
func (s *Service) UpdateAll(ctx context.Context, skipRecentlyUpdated bool) error {
	if !s.busy.CompareAndSwap(false, true) {
		logger.Warn("Update already in progress, skipping")
		if s.metrics != nil {
			s.metrics.RecordSyncSkipped("busy")
		}
		return nil
	}
	defer s.busy.Store(false)

	cycleID := uuid.New().String()
	cycleStart := s.now()
	updatedThisCycle := make(map[string]bool)

	logger.Info("Starting catalog update cycle",
		"cycle_id", cycleID,
		"types", len(s.settings.Sync.Types),
		"skip_recent", skipRecentlyUpdated)

	failures := 0
	for _, giftType := range s.settings.Sync.Types {
		if skipRecentlyUpdated && updatedThisCycle[giftType] {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.UpdateItemType(ctx, giftType); err != nil {
			failures++
			logger.Warn("Gift type update failed, continuing cycle",
				"cycle_id", cycleID,
				"gift_type", giftType,
				"error", err)
			continue
		}
		updatedThisCycle[giftType] = true
	}

	// Simple variant: listing gifts have no per-unit records
	if s.settings.Source.BotToken != "" {
		if err := s.UpdateListing(ctx); err != nil {
			failures++
			logger.Warn("Listing update failed", "cycle_id", cycleID, "error", err)
		}
	}

	duration := s.now().Sub(cycleStart)
	status := "success"
	if failures > 0 {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordSyncCycle(status, duration.Seconds())
	}

	logger.Info("Catalog update cycle finished",
		"cycle_id", cycleID,
		"duration_s", duration.Seconds(),
		"failures", failures)

	return nil
}

// StartPolling runs the sync scheduler until stopChan closes. Each tick
// checks ShouldUpdate before triggering a cycle.
func (s *Service) StartPolling(ctx context.Context, stopChan <-chan struct{}) {
	interval := time.Duration(s.settings.Sync.Interval) * time.Minute

	logger.Info("Starting gift sync polling",
		"interval_minutes", s.settings.Sync.Interval,
		"types", s.settings.Sync.Types)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runIfDue(ctx)

	for {
		select {
		case <-ticker.C:
			s.runIfDue(ctx)
		case <-stopChan:
			logger.Info("Stopping gift sync polling")
			return
		case <-ctx.Done():
			logger.Info("Gift sync polling cancelled")
			return
		}
	}
}

func (s *Service) runIfDue(ctx context.Context) {
	due, err := s.ShouldUpdate()
	if err != nil {
		logger.Error("Failed to check update due state", "error", err)
		return
	}
	if !due {
		if s.metrics != nil {
			s.metrics.RecordSyncSkipped("fresh")
		}
		logger.Debug("Catalog is fresh, skipping cycle")
		return
	}
	if err := s.UpdateAll(ctx, true); err != nil {
		logger.Error("Update cycle failed", "error", err)
	}
}

// Close releases the service log file.
func (s *Service) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing giftsync logger: %v", err)
		}
	}
}

// notifyStockLevels emits sold-out and low-stock alerts after an upsert.
func (s *Service) notifyStockLevels(gift *datastore.Gift, wasActive bool) {
	if s.notifier == nil {
		return
	}

	if gift.Status == datastore.StatusSoldOut {
		if wasActive {
			s.notifier.NotifySoldOut(gift)
		}
		return
	}

	if gift.Total > 0 {
		percentLeft := float64(gift.Remaining) / float64(gift.Total) * 100
		if percentLeft <= float64(s.settings.Realtime.Notification.LowStockPercent) {
			s.notifier.NotifyLowStock(gift, percentLeft)
		}
	}
}

// publishChange pushes a ledger delta to the publisher, if any.
func (s *Service) publishChange(ctx context.Context, entry *datastore.GiftHistory) {
	if s.publisher == nil || entry == nil {
		return
	}
	if err := s.publisher.PublishDelta(ctx, entry); err != nil {
		logger.Warn("Failed to publish ledger delta", "gift_id", entry.GiftID, "error", err)
	}
}

// publishSoldOut pushes a sold-out event to the publisher, if any.
func (s *Service) publishSoldOut(ctx context.Context, gift *datastore.Gift) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSoldOut(ctx, gift); err != nil {
		logger.Warn("Failed to publish sold-out event", "gift_id", gift.ID, "error", err)
	}
}

var _ Fetcher = (*telegram.Client)(nil)

// unitResult carries the outcome of one per-unit fetch within a batch.
type unitResult struct {
	record *telegram.UnitRecord
	err    error
	num    int
}

func fetchBatch(ctx context.Context, client Fetcher, giftType string, from, to int) []unitResult {
	results := make([]unitResult, to-from+1)
	var wg sync.WaitGroup

	for num := from; num <= to; num++ {
		wg.Add(1)
		go func(num int) {
			defer wg.Done()
			record, err := client.GetUnit(ctx, giftType, num)
			results[num-from] = unitResult{record: record, err: err, num: num}
		}(num)
	}

	wg.Wait()
	return results
}
