// model.go this code defines the data model for the application
package datastore

import "time"

// Gift statuses. A gift is active until the upstream listing drops it or its
// issued count reaches the declared total.
const (
	StatusActive  = "active"
	StatusSoldOut = "sold_out"
)

// Gift represents the current snapshot of one tracked gift type.
// Exactly one Gift row exists per id; prior versions live in GiftArchive.
type Gift struct {
	ID          string `gorm:"primaryKey"` // upstream id or type slug
	Name        string `gorm:"uniqueIndex:idx_gifts_name"`
	Emoji       string // set for listing (non-unit-numbered) gifts
	StarCount   int
	Issued      int // units fetched so far
	Total       int // declared cap
	Remaining   int
	Status      string `gorm:"index:idx_gifts_status"`
	ModelsCount int
	Models      []GiftModel `gorm:"foreignKey:GiftID;constraint:OnDelete:CASCADE"`
	Version     int64       `gorm:"index:idx_gifts_version"` // monotonic version stamp
	LastUpdated time.Time   `gorm:"index:idx_gifts_lastupdated"`
}

// GiftModel represents one variant of a gift together with its merged owners.
type GiftModel struct {
	ID          uint   `gorm:"primaryKey"`
	GiftID      string `gorm:"index;not null"`
	Name        string
	OwnersCount int
	ImageURL    string
	Owners      []GiftOwner `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE"`
}

// UnitDetail carries per-unit attributes kept alongside the owning owner record.
type UnitDetail struct {
	Number   int    `json:"number"`
	Pattern  string `json:"pattern"`
	Backdrop string `json:"backdrop"`
}

// GiftOwner is an aggregated owner of one or more units of a gift model.
// Hidden is true only when every contributing unit record lacked a resolvable
// public identity.
type GiftOwner struct {
	ID          uint  `gorm:"primaryKey"`
	ModelID     uint  `gorm:"index;not null"`
	OwnerID     int64 // upstream numeric id, 0 when unknown
	DisplayName string
	Username    string
	OwnerName   string
	Address     string
	Hidden      bool
	GiftsCount  int
	GiftNumbers []int        `gorm:"serializer:json"`
	Units       []UnitDetail `gorm:"serializer:json"`
}

// GiftArchive is an immutable copy of a Gift taken right before it was
// replaced by a newer version. Retention keeps only the most recent K per gift.
type GiftArchive struct {
	ID          uint   `gorm:"primaryKey"`
	GiftID      string `gorm:"index:idx_gift_archives_gift_replaced"`
	Name        string
	Issued      int
	Total       int
	Remaining   int
	Status      string
	ModelsCount int
	Models      []GiftModel `gorm:"serializer:json"`
	Version     int64
	ReplacedAt  time.Time `gorm:"index:idx_gift_archives_gift_replaced"`
	ReplacedBy  int64     // version of the snapshot that replaced this one
}

// GiftHistory is one append-only ledger entry recording a remaining-count
// change. Delta is signed; a delta of zero marks first creation.
type GiftHistory struct {
	ID             uint   `gorm:"primaryKey"`
	GiftID         string `gorm:"index:idx_gift_history_gift_time"`
	RemainingCount int
	TotalCount     int
	Delta          int
	Timestamp      time.Time `gorm:"index:idx_gift_history_gift_time"`
}

// GiftPrediction stores one exhaustion prediction. Only the most recent row
// per gift is authoritative; older rows are kept as history.
type GiftPrediction struct {
	ID         uint       `gorm:"primaryKey"`
	GiftID     string     `gorm:"index:idx_gift_predictions_gift_created"`
	SoldOutAt  *time.Time // nil when no prediction could be made
	Confidence float64
	Data       string    `gorm:"type:text"` // serialized supporting stats
	CreatedAt  time.Time `gorm:"index:idx_gift_predictions_gift_created"`
}
