package datastore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gifttrack/gifttrack-go/internal/conf"
)

// createDatabase initializes a temporary database for testing purposes.
// It ensures the database connection is opened and handles potential errors.
func createDatabase(t *testing.T, settings *conf.Settings) Interface {
	t.Helper()
	tempDir := t.TempDir()
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = tempDir + "/test.db"

	dataStore := New(settings)

	// Attempt to open a database connection.
	require.NoError(t, dataStore.Open(), "Failed to open database")

	// Ensure the database is closed after the test completes.
	t.Cleanup(func() {
		assert.NoError(t, dataStore.Close(), "Failed to close datastore")
	})

	return dataStore
}

func testGift(id string, remaining int) *Gift {
	return &Gift{
		ID:          id,
		Name:        "Gift-" + id,
		StarCount:   100,
		Issued:      1000 - remaining,
		Total:       1000,
		Remaining:   remaining,
		Status:      StatusActive,
		ModelsCount: 1,
		Models: []GiftModel{
			{
				Name:        "Common",
				OwnersCount: 2,
				Owners: []GiftOwner{
					{OwnerID: 1, DisplayName: "Alice", Username: "alice", GiftsCount: 2, GiftNumbers: []int{1, 5}},
					{Hidden: true, GiftsCount: 1, GiftNumbers: []int{3}},
				},
			},
		},
		Version:     time.Now().UnixNano(),
		LastUpdated: time.Now().UTC(),
	}
}

func TestSaveAndGetGift(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	gift := testGift("DurovsCap", 250)
	require.NoError(t, ds.SaveGift(gift))

	got, err := ds.GetGift("DurovsCap")
	require.NoError(t, err)
	assert.Equal(t, "Gift-DurovsCap", got.Name)
	assert.Equal(t, 250, got.Remaining)
	require.Len(t, got.Models, 1)
	require.Len(t, got.Models[0].Owners, 2)
	assert.Equal(t, "Alice", got.Models[0].Owners[0].DisplayName)
	assert.Equal(t, []int{1, 5}, got.Models[0].Owners[0].GiftNumbers)
	assert.True(t, got.Models[0].Owners[1].Hidden)
}

func TestSaveGiftReplacesModelTree(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	gift := testGift("LootBag", 500)
	require.NoError(t, ds.SaveGift(gift))

	// Second save with a different model set must fully replace the first.
	updated := testGift("LootBag", 400)
	updated.Models = []GiftModel{
		{Name: "Rare", OwnersCount: 1, Owners: []GiftOwner{{OwnerID: 7, DisplayName: "Bob"}}},
	}
	require.NoError(t, ds.SaveGift(updated))

	got, err := ds.GetGift("LootBag")
	require.NoError(t, err)
	assert.Equal(t, 400, got.Remaining)
	require.Len(t, got.Models, 1)
	assert.Equal(t, "Rare", got.Models[0].Name)

	// No orphaned owner rows from the first model tree
	var ownerCount int64
	db := ds.(*SQLiteStore).DB
	require.NoError(t, db.Model(&GiftOwner{}).Count(&ownerCount).Error)
	assert.Equal(t, int64(1), ownerCount)
}

func TestGetGiftNotFound(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	_, err := ds.GetGift("missing")
	assert.Error(t, err)
}

func TestSearchGiftsOrderingAndPagination(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	remaining := []int{300, 50, 0, 120}
	for i, r := range remaining {
		gift := testGift(fmt.Sprintf("g%d", i), r)
		if r == 0 {
			gift.Status = StatusSoldOut
		}
		require.NoError(t, ds.SaveGift(gift))
	}

	gifts, total, err := ds.SearchGifts(GiftFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, gifts, 4)

	// Active gifts first ordered by remaining ascending, sold-out last.
	assert.Equal(t, "g1", gifts[0].ID)
	assert.Equal(t, "g3", gifts[1].ID)
	assert.Equal(t, "g0", gifts[2].ID)
	assert.Equal(t, "g2", gifts[3].ID)

	// Pagination
	page, total, err := ds.SearchGifts(GiftFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.Equal(t, "g0", page[0].ID)

	// Status filter
	soldOut, total, err := ds.SearchGifts(GiftFilter{Status: StatusSoldOut}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, soldOut, 1)
	assert.Equal(t, "g2", soldOut[0].ID)
}

func TestArchivePruneKeepsMostRecent(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, ds.ArchiveGift(&GiftArchive{
			GiftID:     "DurovsCap",
			Name:       "Durov's Cap",
			Remaining:  500 - i*10,
			Version:    int64(i + 1),
			ReplacedAt: base.Add(time.Duration(i) * time.Hour),
			ReplacedBy: int64(i + 2),
		}))
	}

	require.NoError(t, ds.PruneGiftArchives("DurovsCap", 3))

	archives, err := ds.GetGiftArchives("DurovsCap", 0)
	require.NoError(t, err)
	require.Len(t, archives, 3)

	// Most recent first, oldest two pruned
	assert.Equal(t, int64(5), archives[0].Version)
	assert.Equal(t, int64(4), archives[1].Version)
	assert.Equal(t, int64(3), archives[2].Version)
}

func TestPruneArchivesRejectsInvalidRetention(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	assert.Error(t, ds.PruneGiftArchives("DurovsCap", 0))
}

func TestGiftHistoryWindowAndPage(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	deltas := []int{0, -10, -25, -5}
	remaining := 1000
	for i, d := range deltas {
		remaining += d
		require.NoError(t, ds.AppendGiftHistory(&GiftHistory{
			GiftID:         "LootBag",
			RemainingCount: remaining,
			TotalCount:     1000,
			Delta:          d,
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
		}))
	}

	window, err := ds.GetGiftHistoryWindow("LootBag", base.Add(30*time.Minute), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, -10, window[0].Delta)
	assert.True(t, window[0].Timestamp.Before(window[1].Timestamp))

	minDelta := -20
	page, total, err := ds.GetGiftHistoryPage("LootBag", HistoryFilter{MinDelta: &minDelta}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 3)
	// Most recent first
	assert.Equal(t, -5, page[0].Delta)
}

func TestLatestPrediction(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	none, err := ds.LatestPrediction("DurovsCap")
	require.NoError(t, err)
	assert.Nil(t, none)

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	soldOut := first.Add(48 * time.Hour)
	require.NoError(t, ds.SavePrediction(&GiftPrediction{
		GiftID: "DurovsCap", Confidence: 0.5, CreatedAt: first,
	}))
	require.NoError(t, ds.SavePrediction(&GiftPrediction{
		GiftID: "DurovsCap", SoldOutAt: &soldOut, Confidence: 0.8, CreatedAt: first.Add(time.Hour),
	}))

	latest, err := ds.LatestPrediction("DurovsCap")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 0.8, latest.Confidence, 1e-9)
	require.NotNil(t, latest.SoldOutAt)
	assert.True(t, latest.SoldOutAt.Equal(soldOut))
}

func TestLatestUpdateEmptyDatabase(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	ts, err := ds.LatestUpdate()
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	gift := testGift("DurovsCap", 100)
	gift.LastUpdated = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ds.SaveGift(gift))

	ts, err = ds.LatestUpdate()
	require.NoError(t, err)
	assert.Equal(t, gift.LastUpdated.Unix(), ts.Unix())
}
