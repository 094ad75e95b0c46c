// Package analytics turns the gift history ledger into hourly purchase
// statistics, trend classification and a confidence-scored exhaustion
// prediction with a staleness-gated refresh policy.
package analytics

import "time"

// Trend classification values.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// HourlyStat is the purchase total of one hour-of-day bucket. Hour is
// rendered as "HH:00" in UTC.
type HourlyStat struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// PredictionData carries the supporting numbers behind a prediction, stored
// serialized alongside the prediction record.
type PredictionData struct {
	TotalSold      int     `json:"total_sold"`
	HoursTracked   float64 `json:"hours_tracked"`
	HourlyRate     float64 `json:"hourly_rate"`
	AdjustedRate   float64 `json:"adjusted_rate"`
	HoursRemaining int     `json:"hours_remaining,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Prediction is one exhaustion estimate. SoldOutAt is nil when no estimate
// could be made; Confidence is always in [0,1].
type Prediction struct {
	SoldOutAt  *time.Time     `json:"predicted_sold_out_date"`
	Confidence float64        `json:"confidence"`
	Data       PredictionData `json:"prediction_data"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Stats is the full analytics payload of one gift.
type Stats struct {
	GiftID       string       `json:"gift_id"`
	CurrentCount int          `json:"current_count"`
	TotalCount   int          `json:"total_count"`
	Status       string       `json:"status"`
	PeakHour     string       `json:"peak_hour"`
	PeakCount    int          `json:"peak_count"`
	PurchaseRate float64      `json:"purchase_rate"`
	Trend        string       `json:"purchase_trend"`
	HourlyStats  []HourlyStat `json:"hourly_stats"`
	Prediction   *Prediction  `json:"prediction"`
	LastUpdated  time.Time    `json:"last_updated"`
}

// PredictionInput is everything a prediction strategy may use. Entries is
// the trailing ledger window ordered by timestamp ascending.
type PredictionInput struct {
	GiftID    string
	Remaining int
	Total     int
	Entries   []entryPoint
	Now       time.Time
}

// entryPoint is the strategy-facing view of one ledger entry.
type entryPoint struct {
	Timestamp time.Time
	Remaining int
	Delta     int
}

// Strategy produces an exhaustion prediction from a ledger window. The
// default closed-form heuristic is deterministic; alternative strategies
// (e.g. a learned model) plug in behind the same interface.
type Strategy interface {
	Predict(input PredictionInput) Prediction
}
