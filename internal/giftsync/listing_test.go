package giftsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

func listingItem(id, emoji string, remaining, total, stars int) telegram.ListingGift {
	return telegram.ListingGift{
		ID:             id,
		Emoji:          emoji,
		StarCount:      stars,
		RemainingCount: &remaining,
		TotalCount:     total,
	}
}

func TestUpdateListingUpsertsGifts(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		listing: []telegram.ListingGift{
			listingItem("5170145012310081615", "💝", 3000, 10000, 25),
			listingItem("5170233102089322756", "🧸", 0, 5000, 50),
		},
	}
	svc, ds := newTestService(t, fetcher)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.UpdateListing(context.Background()))

	heart, err := ds.GetGift("5170145012310081615")
	require.NoError(t, err)
	assert.Equal(t, "💝 5170145012310081615", heart.Name)
	assert.Equal(t, "💝", heart.Emoji)
	assert.Equal(t, 3000, heart.Remaining)
	assert.Equal(t, 7000, heart.Issued)
	assert.Equal(t, 25, heart.StarCount)
	assert.Equal(t, datastore.StatusActive, heart.Status)

	bear, err := ds.GetGift("5170233102089322756")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusSoldOut, bear.Status)
	assert.Zero(t, bear.Remaining)
}

func TestUpdateListingVanishedGiftDropsToZero(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		listing: []telegram.ListingGift{
			listingItem("keeper", "💝", 500, 1000, 25),
			listingItem("goner", "🎁", 200, 1000, 50),
		},
	}
	svc, ds := newTestService(t, fetcher)

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	require.NoError(t, svc.UpdateListing(context.Background()))

	// Next listing no longer carries the second gift
	fetcher.listing = fetcher.listing[:1]
	second := first.Add(time.Hour)
	svc.now = func() time.Time { return second }
	require.NoError(t, svc.UpdateListing(context.Background()))

	gone, err := ds.GetGift("goner")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusSoldOut, gone.Status)
	assert.Zero(t, gone.Remaining)

	// The disappearance is one drop-to-zero ledger entry covering the
	// final 200 units
	entries, err := ds.GetGiftHistoryWindow("goner", first, second.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 200, entries[1].Delta)
	assert.Zero(t, entries[1].RemainingCount)

	// The surviving gift is untouched
	keeper, err := ds.GetGift("keeper")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusActive, keeper.Status)
	assert.Equal(t, 500, keeper.Remaining)
}

func TestUpdateListingDoesNotTouchCollectibleTypes(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{issued: 5, total: 100}
	svc, ds := newTestService(t, fetcher)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// Collectible gifts carry no emoji and never appear in the bot listing
	require.NoError(t, svc.UpdateItemType(context.Background(), "DurovsCap"))

	fetcher.listing = nil
	require.NoError(t, svc.UpdateListing(context.Background()))

	gift, err := ds.GetGift("DurovsCap")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusActive, gift.Status)
	assert.Equal(t, 95, gift.Remaining)
}

func TestUpdateListingSoldOutNotifiesOnce(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		listing: []telegram.ListingGift{listingItem("fading", "🎁", 1, 1000, 25)},
	}
	svc, _ := newTestService(t, fetcher)

	recorder := &recordingNotifier{}
	svc.notifier = recorder

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	require.NoError(t, svc.UpdateListing(context.Background()))

	fetcher.listing = []telegram.ListingGift{listingItem("fading", "🎁", 0, 1000, 25)}
	svc.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, svc.UpdateListing(context.Background()))

	// Repeat observations of an already sold-out gift stay silent
	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, svc.UpdateListing(context.Background()))

	assert.Equal(t, 1, recorder.soldOut)
	assert.Equal(t, 1, recorder.lowStock, "the 1-of-1000 observation is a low stock alert")
}

// recordingNotifier counts alert deliveries.
type recordingNotifier struct {
	soldOut  int
	lowStock int
}

func (r *recordingNotifier) NotifySoldOut(gift *datastore.Gift)                      { r.soldOut++ }
func (r *recordingNotifier) NotifyLowStock(gift *datastore.Gift, percentLeft float64) { r.lowStock++ }
