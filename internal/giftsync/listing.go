package giftsync

import (
	"context"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/errors"
)

// UpdateListing refreshes the simple (non-unit-numbered) gifts from the bot
// listing. Tracked listing gifts absent from the latest active listing are
// marked sold out with a drop-to-zero ledger entry; no per-unit fetch
// happens for this variant.
func (s *Service) UpdateListing(ctx context.Context) error {
	listing, err := s.client.GetAvailableGifts(ctx)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryGiftFetch).
			Context("operation", "listing").
			Component("giftsync").
			Build()
	}

	now := s.now().UTC()
	newVersion := now.UnixNano()
	active := make(map[string]bool, len(listing))

	for i := range listing {
		item := &listing[i]
		active[item.ID] = true

		remaining := 0
		if item.RemainingCount != nil {
			remaining = *item.RemainingCount
		}

		status := datastore.StatusActive
		if remaining == 0 {
			status = datastore.StatusSoldOut
		}

		emoji := item.Emoji
		if emoji == "" {
			emoji = item.Sticker.Emoji
		}

		previous, err := s.ds.GetGift(item.ID)
		hadPrevious := err == nil
		wasActive := !hadPrevious || previous.Status == datastore.StatusActive

		gift := &datastore.Gift{
			ID:          item.ID,
			Name:        listingName(item.ID, emoji),
			Emoji:       emoji,
			StarCount:   item.StarCount,
			Issued:      item.TotalCount - remaining,
			Total:       item.TotalCount,
			Remaining:   remaining,
			Status:      status,
			Version:     newVersion,
			LastUpdated: now,
		}

		if err := s.ds.SaveGift(gift); err != nil {
			if s.metrics != nil {
				s.metrics.RecordGiftUpdate(item.ID, "error")
			}
			logger.Warn("Failed to upsert listing gift", "gift_id", item.ID, "error", err)
			continue
		}

		entry, err := s.ledger.Record(item.ID, remaining, item.TotalCount, now)
		if err != nil {
			logger.Warn("Failed to record listing delta", "gift_id", item.ID, "error", err)
		}
		s.publishChange(ctx, entry)

		if s.metrics != nil {
			s.metrics.RecordGiftUpdate(item.ID, "success")
			s.metrics.UpdateGiftRemaining(item.ID, remaining)
		}
		s.notifyStockLevels(gift, wasActive)
		if status == datastore.StatusSoldOut && wasActive {
			s.publishSoldOut(ctx, gift)
		}
	}

	return s.markVanishedListingGifts(ctx, active, now)
}

// markVanishedListingGifts flags tracked listing gifts that disappeared
// from the active listing as sold out.
func (s *Service) markVanishedListingGifts(ctx context.Context, active map[string]bool, now time.Time) error {
	gifts, err := s.ds.GetActiveGifts()
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "listing-diff").
			Component("giftsync").
			Build()
	}

	for i := range gifts {
		gift := &gifts[i]
		// Collectible types carry no emoji and are not listing gifts
		if gift.Emoji == "" || active[gift.ID] {
			continue
		}

		drop := gift.Remaining
		gift.Remaining = 0
		gift.Status = datastore.StatusSoldOut
		gift.LastUpdated = now

		if err := s.ds.SaveGift(gift); err != nil {
			logger.Warn("Failed to mark vanished gift sold out", "gift_id", gift.ID, "error", err)
			continue
		}

		entry, err := s.ledger.Append(gift.ID, 0, gift.Total, drop, now)
		if err != nil {
			logger.Warn("Failed to record drop-to-zero entry", "gift_id", gift.ID, "error", err)
		}
		s.publishChange(ctx, entry)
		s.publishSoldOut(ctx, gift)

		if s.notifier != nil {
			s.notifier.NotifySoldOut(gift)
		}
		if s.metrics != nil {
			s.metrics.UpdateGiftRemaining(gift.ID, 0)
		}

		logger.Info("Listing gift vanished, marked sold out",
			"gift_id", gift.ID,
			"dropped", drop)
	}

	return nil
}

func listingName(id, emoji string) string {
	if emoji != "" {
		return emoji + " " + id
	}
	return id
}
