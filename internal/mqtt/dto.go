package mqtt

import "time"

// DeltaEvent is the wire payload for one remaining-count change.
type DeltaEvent struct {
	GiftID         string    `json:"gift_id"`
	RemainingCount int       `json:"remaining_count"`
	TotalCount     int       `json:"total_count"`
	Delta          int       `json:"delta"`
	Timestamp      time.Time `json:"timestamp"`
}

// SoldOutEvent is the wire payload for a gift transitioning to sold out.
type SoldOutEvent struct {
	GiftID    string    `json:"gift_id"`
	Name      string    `json:"name"`
	Total     int       `json:"total"`
	Version   int64     `json:"version"`
	SoldOutAt time.Time `json:"sold_out_at"`
}
