// internal/api/v2/analytics.go
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gifttrack/gifttrack-go/internal/analytics"
)

// GiftStatsResponse is the per-gift analytics payload.
type GiftStatsResponse struct {
	GiftID       string             `json:"gift_id"`
	CurrentCount int                `json:"current_count"`
	TotalCount   int                `json:"total_count"`
	Status       string             `json:"status"`
	Analytics    GiftAnalyticsBlock `json:"analytics"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// GiftAnalyticsBlock groups the derived statistics inside the stats payload.
type GiftAnalyticsBlock struct {
	PeakHour     string                 `json:"peak_hour"`
	PeakCount    int                    `json:"peak_count"`
	PurchaseRate float64                `json:"purchase_rate"`
	Trend        string                 `json:"trend"`
	HourlyStats  []analytics.HourlyStat `json:"hourly_stats"`
	Prediction   *PredictionResponse    `json:"prediction"`
}

// PredictionResponse is the exhaustion prediction inside the stats payload.
type PredictionResponse struct {
	SoldOutAt      *time.Time `json:"sold_out_at"`
	Confidence     float64    `json:"confidence"`
	HourlyRate     float64    `json:"hourly_rate"`
	HoursRemaining int        `json:"hours_remaining"`
	CreatedAt      time.Time  `json:"created_at"`
}

// initAnalyticsRoutes registers all analytics API endpoints
func (c *Controller) initAnalyticsRoutes() {
	analyticsGroup := c.Group.Group("/analytics")

	analyticsGroup.GET("/gifts/:id", c.GetGiftStats)
	analyticsGroup.GET("/global", c.GetGlobalStats)
}

// GetGiftStats handles GET /api/v2/analytics/gifts/:id
// Returns hourly purchase distribution, trend and the current prediction.
// A stale prediction is served as-is while a refresh runs in the background.
func (c *Controller) GetGiftStats(ctx echo.Context) error {
	id := ctx.Param("id")

	stats, err := c.Analytics.GetStats(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute gift statistics", http.StatusNotFound)
	}

	response := GiftStatsResponse{
		GiftID:       stats.GiftID,
		CurrentCount: stats.CurrentCount,
		TotalCount:   stats.TotalCount,
		Status:       stats.Status,
		Analytics: GiftAnalyticsBlock{
			PeakHour:     stats.PeakHour,
			PeakCount:    stats.PeakCount,
			PurchaseRate: stats.PurchaseRate,
			Trend:        stats.Trend,
			HourlyStats:  stats.HourlyStats,
		},
		LastUpdated: stats.LastUpdated,
	}

	if stats.Prediction != nil {
		response.Analytics.Prediction = &PredictionResponse{
			SoldOutAt:      stats.Prediction.SoldOutAt,
			Confidence:     stats.Prediction.Confidence,
			HourlyRate:     stats.Prediction.Data.AdjustedRate,
			HoursRemaining: stats.Prediction.Data.HoursRemaining,
			CreatedAt:      stats.Prediction.CreatedAt,
		}
	}

	return ctx.JSON(http.StatusOK, response)
}

// GetGlobalStats handles GET /api/v2/analytics/global
func (c *Controller) GetGlobalStats(ctx echo.Context) error {
	if c.metrics != nil && c.metrics.Analytics != nil {
		c.metrics.Analytics.RecordStatsRequest()
	}

	stats, err := c.Analytics.GetGlobalStats()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute global statistics", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, stats)
}
