// internal/api/v2/gifts.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/owners"
)

// GiftSummary is one gift in the list response.
type GiftSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Emoji       string    `json:"emoji,omitempty"`
	StarCount   int       `json:"star_count"`
	Issued      int       `json:"issued"`
	Total       int       `json:"total"`
	Remaining   int       `json:"remaining"`
	Status      string    `json:"status"`
	ModelsCount int       `json:"models_count"`
	Version     int64     `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

// GiftListResponse is a paginated page of gifts.
type GiftListResponse struct {
	Gifts  []GiftSummary `json:"gifts"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ModelSummary is one gift model with owner counts, without the owner list.
type ModelSummary struct {
	Name        string `json:"name"`
	OwnersCount int    `json:"owners_count"`
	TotalGifts  int    `json:"total_gifts"`
	ImageURL    string `json:"image_url,omitempty"`
}

// OwnerSummary is one aggregated owner in API responses.
type OwnerSummary struct {
	DisplayName string                 `json:"display_name"`
	Username    string                 `json:"username,omitempty"`
	Hidden      bool                   `json:"hidden"`
	GiftsCount  int                    `json:"gifts_count"`
	GiftNumbers []int                  `json:"gift_numbers,omitempty"`
	Units       []datastore.UnitDetail `json:"units,omitempty"`
}

// HistoryListResponse is a paginated page of ledger entries.
type HistoryListResponse struct {
	GiftID  string         `json:"gift_id"`
	Entries []HistoryEntry `json:"entries"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// HistoryEntry is one ledger row in API responses.
type HistoryEntry struct {
	RemainingCount int       `json:"remaining_count"`
	TotalCount     int       `json:"total_count"`
	Delta          int       `json:"delta"`
	Timestamp      time.Time `json:"timestamp"`
}

// ArchiveSummary is one archived snapshot, without the full model tree.
type ArchiveSummary struct {
	Version     int64     `json:"version"`
	Issued      int       `json:"issued"`
	Total       int       `json:"total"`
	Remaining   int       `json:"remaining"`
	Status      string    `json:"status"`
	ModelsCount int       `json:"models_count"`
	ReplacedAt  time.Time `json:"replaced_at"`
	ReplacedBy  int64     `json:"replaced_by"`
}

// initGiftRoutes registers all gift catalog endpoints
func (c *Controller) initGiftRoutes() {
	giftsGroup := c.Group.Group("/gifts")

	giftsGroup.GET("", c.GetGifts)
	giftsGroup.GET("/:id", c.GetGift)
	giftsGroup.GET("/:id/models", c.GetGiftModels)
	giftsGroup.GET("/:id/owners", c.GetGiftOwners)
	giftsGroup.GET("/:id/history", c.GetGiftHistory)
	giftsGroup.GET("/:id/archives", c.GetGiftArchives)

	c.Group.GET("/owners/top", c.GetTopOwners)
}

// GetGifts handles GET /api/v2/gifts
// Lists tracked gifts, active first by scarcity, with optional filters.
func (c *Controller) GetGifts(ctx echo.Context) error {
	limit, offset := paginationParams(ctx)

	filter := datastore.GiftFilter{
		Status: ctx.QueryParam("status"),
	}
	if raw := ctx.QueryParam("min_remaining"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.MinRemaining = parsed
		}
	}
	if raw := ctx.QueryParam("max_remaining"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.MaxRemaining = parsed
		}
	}
	if raw := ctx.QueryParam("min_stars"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.MinStars = parsed
		}
	}
	if raw := ctx.QueryParam("max_stars"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.MaxStars = parsed
		}
	}

	gifts, total, err := c.DS.SearchGifts(filter, limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to search gifts", http.StatusInternalServerError)
	}

	summaries := make([]GiftSummary, 0, len(gifts))
	for i := range gifts {
		summaries = append(summaries, giftSummary(&gifts[i]))
	}

	return ctx.JSON(http.StatusOK, GiftListResponse{
		Gifts:  summaries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GiftDetailResponse is the full snapshot plus the most recent ledger entry.
type GiftDetailResponse struct {
	datastore.Gift
	LastChange *HistoryEntry `json:"last_change,omitempty"`
}

// GetGift handles GET /api/v2/gifts/:id
// Returns the full current snapshot including models, owners and the most
// recent count change.
func (c *Controller) GetGift(ctx echo.Context) error {
	id := ctx.Param("id")

	gift, err := c.DS.GetGift(id)
	if err != nil {
		return c.HandleError(ctx, err, "Gift not found", http.StatusNotFound)
	}

	response := GiftDetailResponse{Gift: gift}
	if latest, err := c.DS.LatestGiftHistory(id); err == nil && latest != nil {
		response.LastChange = &HistoryEntry{
			RemainingCount: latest.RemainingCount,
			TotalCount:     latest.TotalCount,
			Delta:          latest.Delta,
			Timestamp:      latest.Timestamp,
		}
	}

	return ctx.JSON(http.StatusOK, response)
}

// GetGiftModels handles GET /api/v2/gifts/:id/models
func (c *Controller) GetGiftModels(ctx echo.Context) error {
	id := ctx.Param("id")

	gift, err := c.DS.GetGift(id)
	if err != nil {
		return c.HandleError(ctx, err, "Gift not found", http.StatusNotFound)
	}

	models := make([]ModelSummary, 0, len(gift.Models))
	for i := range gift.Models {
		model := &gift.Models[i]
		totalGifts := 0
		for j := range model.Owners {
			totalGifts += model.Owners[j].GiftsCount
		}
		models = append(models, ModelSummary{
			Name:        model.Name,
			OwnersCount: model.OwnersCount,
			TotalGifts:  totalGifts,
			ImageURL:    model.ImageURL,
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"gift_id": id,
		"models":  models,
	})
}

// GetGiftOwners handles GET /api/v2/gifts/:id/owners
// Returns owners merged across all models of the gift, ordered by holdings.
// An optional model query parameter restricts the merge to one model; top
// limits the result to the N largest holders.
func (c *Controller) GetGiftOwners(ctx echo.Context) error {
	id := ctx.Param("id")
	modelName := ctx.QueryParam("model")

	gift, err := c.DS.GetGift(id)
	if err != nil {
		return c.HandleError(ctx, err, "Gift not found", http.StatusNotFound)
	}

	groups := make([][]datastore.GiftOwner, 0, len(gift.Models))
	for i := range gift.Models {
		if modelName != "" && gift.Models[i].Name != modelName {
			continue
		}
		groups = append(groups, gift.Models[i].Owners)
	}
	merged := owners.Combine(groups...)

	if raw := ctx.QueryParam("top"); raw != "" {
		if top, err := strconv.Atoi(raw); err == nil && top > 0 && top < len(merged) {
			merged = merged[:top]
		}
	}

	summaries := make([]OwnerSummary, 0, len(merged))
	for i := range merged {
		owner := &merged[i]
		summaries = append(summaries, OwnerSummary{
			DisplayName: owner.DisplayName,
			Username:    owner.Username,
			Hidden:      owner.Hidden,
			GiftsCount:  owner.GiftsCount,
			GiftNumbers: owner.GiftNumbers,
			Units:       owner.Units,
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"gift_id": id,
		"owners":  summaries,
	})
}

// GetGiftHistory handles GET /api/v2/gifts/:id/history
// Supports since/until time bounds and min_delta/max_delta filters.
func (c *Controller) GetGiftHistory(ctx echo.Context) error {
	id := ctx.Param("id")
	limit, offset := paginationParams(ctx)

	if _, err := c.DS.GetGift(id); err != nil {
		return c.HandleError(ctx, err, "Gift not found", http.StatusNotFound)
	}

	var filter datastore.HistoryFilter
	if raw := ctx.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid since timestamp, expected RFC3339", http.StatusBadRequest)
		}
		filter.Since = parsed
	}
	if raw := ctx.QueryParam("until"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid until timestamp, expected RFC3339", http.StatusBadRequest)
		}
		filter.Until = parsed
	}
	if raw := ctx.QueryParam("min_delta"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.MinDelta = &parsed
		}
	}
	if raw := ctx.QueryParam("max_delta"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.MaxDelta = &parsed
		}
	}

	entries, total, err := c.DS.GetGiftHistoryPage(id, filter, limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query gift history", http.StatusInternalServerError)
	}

	page := make([]HistoryEntry, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		page = append(page, HistoryEntry{
			RemainingCount: entry.RemainingCount,
			TotalCount:     entry.TotalCount,
			Delta:          entry.Delta,
			Timestamp:      entry.Timestamp,
		})
	}

	return ctx.JSON(http.StatusOK, HistoryListResponse{
		GiftID:  id,
		Entries: page,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetGiftArchives handles GET /api/v2/gifts/:id/archives
// Lists archived snapshots newest first.
func (c *Controller) GetGiftArchives(ctx echo.Context) error {
	id := ctx.Param("id")
	limit, _ := paginationParams(ctx)

	if _, err := c.DS.GetGift(id); err != nil {
		return c.HandleError(ctx, err, "Gift not found", http.StatusNotFound)
	}

	archives, err := c.DS.GetGiftArchives(id, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query gift archives", http.StatusInternalServerError)
	}

	summaries := make([]ArchiveSummary, 0, len(archives))
	for i := range archives {
		archive := &archives[i]
		summaries = append(summaries, ArchiveSummary{
			Version:     archive.Version,
			Issued:      archive.Issued,
			Total:       archive.Total,
			Remaining:   archive.Remaining,
			Status:      archive.Status,
			ModelsCount: archive.ModelsCount,
			ReplacedAt:  archive.ReplacedAt,
			ReplacedBy:  archive.ReplacedBy,
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"gift_id":  id,
		"archives": summaries,
	})
}

// GetTopOwners handles GET /api/v2/owners/top
// Returns the largest identified holders across every tracked gift.
func (c *Controller) GetTopOwners(ctx echo.Context) error {
	limit, _ := paginationParams(ctx)

	gifts, err := c.DS.GetAllGiftsDetailed()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load gifts", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"owners": owners.Leaderboard(gifts, limit),
	})
}

func giftSummary(gift *datastore.Gift) GiftSummary {
	return GiftSummary{
		ID:          gift.ID,
		Name:        gift.Name,
		Emoji:       gift.Emoji,
		StarCount:   gift.StarCount,
		Issued:      gift.Issued,
		Total:       gift.Total,
		Remaining:   gift.Remaining,
		Status:      gift.Status,
		ModelsCount: gift.ModelsCount,
		Version:     gift.Version,
		LastUpdated: gift.LastUpdated,
	}
}
