package giftsync

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/errors"
	"github.com/gifttrack/gifttrack-go/internal/owners"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

// batchRange is one inclusive slice of unit numbers fetched concurrently.
type batchRange struct {
	from, to int
}

// batchRanges splits 1..issued into fixed-size batches. issued=125 with
// size 50 yields [1-50, 51-100, 101-125].
func batchRanges(issued, size int) []batchRange {
	var ranges []batchRange
	for from := 1; from <= issued; from += size {
		to := from + size - 1
		if to > issued {
			to = issued
		}
		ranges = append(ranges, batchRange{from: from, to: to})
	}
	return ranges
}

// UpdateItemType refreshes one collectible gift type: probe unit #1 for the
// issued/total counts, fetch every unit in throttled batches, aggregate
// owners per model, archive the prior snapshot and upsert the new one.
// Unreachable types are skipped for this cycle; a failed unit drops only
// that unit.
func (s *Service) UpdateItemType(ctx context.Context, giftType string) error {
	probe, err := s.client.GetUnit(ctx, giftType, 1)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryGiftFetch).
			Context("gift_type", giftType).
			Context("operation", "probe").
			Component("giftsync").
			Build()
	}
	if probe == nil {
		return errors.Newf("gift type %s has no unit #1 upstream", giftType).
			Category(errors.CategoryNotFound).
			Context("gift_type", giftType).
			Component("giftsync").
			Build()
	}

	issued, total := probe.Issued, probe.Total
	logger.Info("Updating gift type",
		"gift_type", giftType,
		"issued", issued,
		"total", total)

	records := s.fetchAllUnits(ctx, giftType, issued)

	models := owners.GroupModels(records)
	now := s.now().UTC()
	newVersion := now.UnixNano()

	previous, err := s.ds.GetGift(giftType)
	hadPrevious := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		// A failed read is not a missing snapshot. Overwriting here would
		// skip the archive of a version that may still exist.
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_type", giftType).
			Context("operation", "load_previous").
			Component("giftsync").
			Build()
	}
	wasActive := !hadPrevious || previous.Status == datastore.StatusActive

	if hadPrevious {
		if err := s.archiveSnapshot(&previous, newVersion, now); err != nil {
			return err
		}
	}

	status := datastore.StatusActive
	if total > 0 && issued >= total {
		status = datastore.StatusSoldOut
	}
	remaining := total - issued
	if remaining < 0 {
		remaining = 0
	}

	gift := &datastore.Gift{
		ID:          giftType,
		Name:        giftType,
		StarCount:   previous.StarCount,
		Issued:      issued,
		Total:       total,
		Remaining:   remaining,
		Status:      status,
		ModelsCount: len(models),
		Models:      models,
		Version:     newVersion,
		LastUpdated: now,
	}

	if err := s.ds.SaveGift(gift); err != nil {
		if s.metrics != nil {
			s.metrics.RecordGiftUpdate(giftType, "error")
		}
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_type", giftType).
			Context("operation", "upsert").
			Component("giftsync").
			Build()
	}

	entry, err := s.ledger.Record(giftType, remaining, total, now)
	if err != nil {
		return err
	}
	s.publishChange(ctx, entry)

	if s.metrics != nil {
		s.metrics.RecordGiftUpdate(giftType, "success")
		s.metrics.UpdateGiftRemaining(giftType, remaining)
	}
	s.notifyStockLevels(gift, wasActive)
	if gift.Status == datastore.StatusSoldOut && wasActive {
		s.publishSoldOut(ctx, gift)
	}
	if s.onUpdated != nil {
		s.onUpdated(giftType)
	}

	logger.Info("Gift type updated",
		"gift_type", giftType,
		"version", newVersion,
		"models", len(models),
		"units_fetched", len(records))

	return nil
}

// fetchAllUnits pulls units 1..issued in fixed-size concurrent batches with
// a fixed delay between batches. The delay is the sole throttle against the
// source; there is no adaptive backoff. Failed or missing units are dropped
// for this cycle, never retried within it.
func (s *Service) fetchAllUnits(ctx context.Context, giftType string, issued int) []telegram.UnitRecord {
	batchSize := s.settings.Sync.BatchSize
	batchDelay := time.Duration(s.settings.Sync.BatchDelayMS) * time.Millisecond

	var records []telegram.UnitRecord
	ranges := batchRanges(issued, batchSize)

	for i, batch := range ranges {
		if ctx.Err() != nil {
			break
		}

		results := fetchBatch(ctx, s.client, giftType, batch.from, batch.to)
		for _, result := range results {
			switch {
			case result.err != nil:
				if s.metrics != nil {
					s.metrics.RecordUnitFetch(giftType, "error")
				}
				logger.Debug("Unit fetch failed, dropping for this cycle",
					"gift_type", giftType,
					"unit", result.num,
					"error", result.err)
			case result.record == nil:
				if s.metrics != nil {
					s.metrics.RecordUnitFetch(giftType, "missing")
				}
			default:
				if s.metrics != nil {
					s.metrics.RecordUnitFetch(giftType, "success")
				}
				records = append(records, *result.record)
			}
		}

		if i < len(ranges)-1 {
			select {
			case <-time.After(batchDelay):
			case <-ctx.Done():
				return records
			}
		}
	}

	return records
}

// archiveSnapshot stores an immutable copy of the outgoing snapshot and
// prunes archives beyond the retention limit. Archival happens before the
// overwrite so a crash mid-cycle leaves the prior state recoverable.
func (s *Service) archiveSnapshot(previous *datastore.Gift, newVersion int64, now time.Time) error {
	archive := &datastore.GiftArchive{
		GiftID:      previous.ID,
		Name:        previous.Name,
		Issued:      previous.Issued,
		Total:       previous.Total,
		Remaining:   previous.Remaining,
		Status:      previous.Status,
		ModelsCount: previous.ModelsCount,
		Models:      previous.Models,
		Version:     previous.Version,
		ReplacedAt:  now,
		ReplacedBy:  newVersion,
	}

	if err := s.ds.ArchiveGift(archive); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_type", previous.ID).
			Context("operation", "archive").
			Component("giftsync").
			Build()
	}
	if s.metrics != nil {
		s.metrics.RecordArchive()
	}

	if err := s.ds.PruneGiftArchives(previous.ID, s.settings.Sync.ArchiveRetention); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_type", previous.ID).
			Context("operation", "prune").
			Component("giftsync").
			Build()
	}

	return nil
}
