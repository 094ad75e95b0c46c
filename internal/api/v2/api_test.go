package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gifttrack/gifttrack-go/internal/analytics"
	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
)

func newTestController(t *testing.T) (*Controller, datastore.Interface) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() {
		assert.NoError(t, ds.Close())
	})

	engine := analytics.NewEngine(ds, 24, 30*time.Minute)

	e := echo.New()
	controller, err := New(e, ds, settings, engine, nil, nil)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)

	return controller, ds
}

func seedGift(t *testing.T, ds datastore.Interface, gift *datastore.Gift) {
	t.Helper()
	if gift.Version == 0 {
		gift.Version = 1
	}
	if gift.LastUpdated.IsZero() {
		gift.LastUpdated = time.Now().UTC()
	}
	require.NoError(t, ds.SaveGift(gift))
}

func doRequest(t *testing.T, c *Controller, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestGetHealth(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 1000, Remaining: 500,
		Status: datastore.StatusActive,
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(1), health.TrackedGifts)
}

func TestGetGiftsListOrderingAndPagination(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "Scarce", Name: "Scarce", Total: 1000, Remaining: 10,
		Status: datastore.StatusActive,
	})
	seedGift(t, ds, &datastore.Gift{
		ID: "Plenty", Name: "Plenty", Total: 1000, Remaining: 900,
		Status: datastore.StatusActive,
	})
	seedGift(t, ds, &datastore.Gift{
		ID: "Gone", Name: "Gone", Total: 100, Remaining: 0,
		Status: datastore.StatusSoldOut,
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts")
	require.Equal(t, http.StatusOK, rec.Code)

	var page GiftListResponse
	decodeBody(t, rec, &page)
	require.Equal(t, int64(3), page.Total)
	require.Len(t, page.Gifts, 3)

	// Active gifts first by scarcity, sold out last
	assert.Equal(t, "Scarce", page.Gifts[0].ID)
	assert.Equal(t, "Plenty", page.Gifts[1].ID)
	assert.Equal(t, "Gone", page.Gifts[2].ID)

	rec = doRequest(t, controller, http.MethodGet, "/api/v2/gifts?limit=1&offset=1")
	decodeBody(t, rec, &page)
	require.Len(t, page.Gifts, 1)
	assert.Equal(t, "Plenty", page.Gifts[0].ID)
	assert.Equal(t, int64(3), page.Total, "total counts the full filtered set")
}

func TestGetGiftsStatusFilter(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "Live", Name: "Live", Total: 100, Remaining: 50,
		Status: datastore.StatusActive,
	})
	seedGift(t, ds, &datastore.Gift{
		ID: "Gone", Name: "Gone", Total: 100, Remaining: 0,
		Status: datastore.StatusSoldOut,
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts?status=sold_out")
	require.Equal(t, http.StatusOK, rec.Code)

	var page GiftListResponse
	decodeBody(t, rec, &page)
	require.Len(t, page.Gifts, 1)
	assert.Equal(t, "Gone", page.Gifts[0].ID)
}

func TestGetGiftNotFound(t *testing.T) {
	t.Parallel()
	controller, _ := newTestController(t)

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "Gift not found", errResp.Message)
	assert.NotEmpty(t, errResp.CorrelationID)
}

func TestGetGiftDetailIncludesModelTree(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 1000, Remaining: 875,
		Issued: 125, Status: datastore.StatusActive, ModelsCount: 1,
		Models: []datastore.GiftModel{{
			Name:        "Common",
			OwnersCount: 1,
			Owners: []datastore.GiftOwner{{
				OwnerID:     7,
				DisplayName: "Alice",
				GiftsCount:  2,
				GiftNumbers: []int{1, 2},
			}},
		}},
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap")
	require.Equal(t, http.StatusOK, rec.Code)

	var gift datastore.Gift
	decodeBody(t, rec, &gift)
	require.Len(t, gift.Models, 1)
	require.Len(t, gift.Models[0].Owners, 1)
	assert.Equal(t, "Alice", gift.Models[0].Owners[0].DisplayName)
}

func TestGetGiftOwnersMergedAcrossModels(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 1000, Remaining: 875,
		Status: datastore.StatusActive, ModelsCount: 2,
		Models: []datastore.GiftModel{
			{
				Name: "Common",
				Owners: []datastore.GiftOwner{{
					OwnerID: 7, DisplayName: "Alice", GiftsCount: 2, GiftNumbers: []int{1, 2},
				}},
			},
			{
				Name: "Rare",
				Owners: []datastore.GiftOwner{{
					OwnerID: 7, DisplayName: "Alice", GiftsCount: 1, GiftNumbers: []int{3},
				}},
			},
		},
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap/owners")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Owners []OwnerSummary `json:"owners"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Owners, 1)
	assert.Equal(t, 3, body.Owners[0].GiftsCount, "holdings merge across models")
	assert.Equal(t, []int{1, 2, 3}, body.Owners[0].GiftNumbers)

	// Restricting to one model keeps that model's holdings only
	rec = doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap/owners?model=Rare")
	decodeBody(t, rec, &body)
	require.Len(t, body.Owners, 1)
	assert.Equal(t, 1, body.Owners[0].GiftsCount)
}

func TestGetGiftDetailLastChange(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 100, Remaining: 80,
		Status: datastore.StatusActive,
	})
	require.NoError(t, ds.AppendGiftHistory(&datastore.GiftHistory{
		GiftID: "DurovsCap", RemainingCount: 80, TotalCount: 100, Delta: 20,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}))

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail GiftDetailResponse
	decodeBody(t, rec, &detail)
	require.NotNil(t, detail.LastChange)
	assert.Equal(t, 20, detail.LastChange.Delta)
	assert.Equal(t, 80, detail.LastChange.RemainingCount)
}

func TestGetTopOwners(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 100, Remaining: 90,
		Status: datastore.StatusActive,
		Models: []datastore.GiftModel{{
			Name: "Common",
			Owners: []datastore.GiftOwner{
				{OwnerID: 1, DisplayName: "Alice", GiftsCount: 2},
				{DisplayName: "Unknown", Hidden: true, GiftsCount: 5},
			},
		}},
	})
	seedGift(t, ds, &datastore.Gift{
		ID: "LootBag", Name: "LootBag", Total: 100, Remaining: 95,
		Status: datastore.StatusActive,
		Models: []datastore.GiftModel{{
			Name: "Common",
			Owners: []datastore.GiftOwner{
				{OwnerID: 1, DisplayName: "Alice", GiftsCount: 1},
				{OwnerID: 2, DisplayName: "Bob", GiftsCount: 4},
			},
		}},
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/owners/top")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Owners []struct {
			DisplayName string `json:"display_name"`
			TotalGifts  int    `json:"total_gifts"`
			GiftsHeld   int    `json:"gifts_held"`
		} `json:"owners"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Owners, 2, "anonymous holdings are excluded")

	assert.Equal(t, "Bob", body.Owners[0].DisplayName)
	assert.Equal(t, 4, body.Owners[0].TotalGifts)

	assert.Equal(t, "Alice", body.Owners[1].DisplayName)
	assert.Equal(t, 3, body.Owners[1].TotalGifts)
	assert.Equal(t, 2, body.Owners[1].GiftsHeld)
}

func TestGetGiftHistoryPaginationAndFilters(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 100, Remaining: 40,
		Status: datastore.StatusActive,
	})

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	remaining := 100
	for i, delta := range []int{0, 10, 30, 20} {
		remaining -= delta
		require.NoError(t, ds.AppendGiftHistory(&datastore.GiftHistory{
			GiftID:         "DurovsCap",
			RemainingCount: remaining,
			TotalCount:     100,
			Delta:          delta,
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
		}))
	}

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var page HistoryListResponse
	decodeBody(t, rec, &page)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.Entries, 4)
	assert.Equal(t, 0, page.Entries[0].Delta)

	rec = doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap/history?min_delta=20")
	decodeBody(t, rec, &page)
	assert.Equal(t, int64(2), page.Total)

	rec = doRequest(t, controller, http.MethodGet,
		"/api/v2/gifts/DurovsCap/history?since=2025-06-01T02:00:00Z")
	decodeBody(t, rec, &page)
	assert.Equal(t, int64(2), page.Total)

	rec = doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap/history?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGiftArchives(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 100, Remaining: 50,
		Status: datastore.StatusActive, Version: 3,
	})

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for version := int64(1); version <= 2; version++ {
		require.NoError(t, ds.ArchiveGift(&datastore.GiftArchive{
			GiftID:     "DurovsCap",
			Name:       "DurovsCap",
			Version:    version,
			ReplacedAt: now.Add(time.Duration(version) * time.Hour),
			ReplacedBy: version + 1,
		}))
	}

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/gifts/DurovsCap/archives")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Archives []ArchiveSummary `json:"archives"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Archives, 2)
	assert.Equal(t, int64(2), body.Archives[0].Version, "newest first")
}

func TestGetGiftStats(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "DurovsCap", Name: "DurovsCap", Total: 1000, Remaining: 700,
		Status: datastore.StatusActive,
	})

	base := time.Now().UTC().Add(-6 * time.Hour).Truncate(time.Hour)
	remaining := 1000
	for i, delta := range []int{0, 50, 50, 50} {
		remaining -= delta
		require.NoError(t, ds.AppendGiftHistory(&datastore.GiftHistory{
			GiftID:         "DurovsCap",
			RemainingCount: remaining,
			TotalCount:     1000,
			Delta:          delta,
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
		}))
	}

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/analytics/gifts/DurovsCap")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats GiftStatsResponse
	decodeBody(t, rec, &stats)
	assert.Equal(t, "DurovsCap", stats.GiftID)
	assert.Equal(t, 700, stats.CurrentCount)
	require.Len(t, stats.Analytics.HourlyStats, 24)
	assert.Positive(t, stats.Analytics.PurchaseRate)
}

func TestGetGiftStatsUnknownGift(t *testing.T) {
	t.Parallel()
	controller, _ := newTestController(t)

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/analytics/gifts/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetGlobalStats(t *testing.T) {
	t.Parallel()
	controller, ds := newTestController(t)

	seedGift(t, ds, &datastore.Gift{
		ID: "Live", Name: "Live", Total: 100, Remaining: 50,
		Status: datastore.StatusActive,
	})
	seedGift(t, ds, &datastore.Gift{
		ID: "Gone", Name: "Gone", Total: 100, Remaining: 0,
		Status: datastore.StatusSoldOut,
	})

	rec := doRequest(t, controller, http.MethodGet, "/api/v2/analytics/global")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats analytics.GlobalStats
	decodeBody(t, rec, &stats)
	assert.Equal(t, int64(2), stats.TotalGifts)
	assert.Equal(t, 1, stats.ActiveGifts)
	assert.Equal(t, 1, stats.SoldOutGifts)
}
