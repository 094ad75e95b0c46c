// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines the
// operations the gift tracker needs.
type Interface interface {
	Open() error
	Close() error

	// gift snapshots
	SaveGift(gift *Gift) error
	GetGift(id string) (Gift, error)
	GetGiftByName(name string) (Gift, error)
	GetAllGifts() ([]Gift, error)
	GetAllGiftsDetailed() ([]Gift, error)
	SearchGifts(filter GiftFilter, limit, offset int) ([]Gift, int64, error)
	GetActiveGifts() ([]Gift, error)
	CountGifts() (int64, error)
	LatestUpdate() (time.Time, error)

	// snapshot archive
	ArchiveGift(archive *GiftArchive) error
	GetGiftArchives(giftID string, limit int) ([]GiftArchive, error)
	PruneGiftArchives(giftID string, keep int) error

	// history ledger
	AppendGiftHistory(entry *GiftHistory) error
	LatestGiftHistory(giftID string) (*GiftHistory, error)
	GetGiftHistoryWindow(giftID string, since, until time.Time) ([]GiftHistory, error)
	GetGiftHistoryPage(giftID string, filter HistoryFilter, limit, offset int) ([]GiftHistory, int64, error)

	// predictions
	SavePrediction(prediction *GiftPrediction) error
	LatestPrediction(giftID string) (*GiftPrediction, error)
}

// GiftFilter narrows SearchGifts results.
type GiftFilter struct {
	Status       string
	MinRemaining int
	MaxRemaining int // 0 means unbounded
	MinStars     int
	MaxStars     int // 0 means unbounded
}

// HistoryFilter narrows GetGiftHistoryPage results.
type HistoryFilter struct {
	Since    time.Time
	Until    time.Time
	MinDelta *int
	MaxDelta *int
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// Validation rejects this configuration before we get here
		return nil
	}
}

// SaveGift upserts a gift snapshot together with its models and owners.
// The previous model tree of the gift is replaced, not merged.
func (ds *DataStore) SaveGift(gift *Gift) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		// Drop the previous model tree; owner rows cascade
		var modelIDs []uint
		if err := tx.Model(&GiftModel{}).Where("gift_id = ?", gift.ID).Pluck("id", &modelIDs).Error; err != nil {
			return fmt.Errorf("listing models for gift %s: %w", gift.ID, err)
		}
		if len(modelIDs) > 0 {
			if err := tx.Where("model_id IN ?", modelIDs).Delete(&GiftOwner{}).Error; err != nil {
				return fmt.Errorf("deleting owners for gift %s: %w", gift.ID, err)
			}
			if err := tx.Where("gift_id = ?", gift.ID).Delete(&GiftModel{}).Error; err != nil {
				return fmt.Errorf("deleting models for gift %s: %w", gift.ID, err)
			}
		}

		if err := tx.Save(gift).Error; err != nil {
			return fmt.Errorf("saving gift %s: %w", gift.ID, err)
		}
		return nil
	})
}

// GetGift retrieves a gift snapshot by id, including models and owners.
func (ds *DataStore) GetGift(id string) (Gift, error) {
	var gift Gift
	if err := ds.DB.Preload("Models.Owners").First(&gift, "id = ?", id).Error; err != nil {
		return Gift{}, fmt.Errorf("getting gift %s: %w", id, err)
	}
	return gift, nil
}

// GetGiftByName retrieves a gift snapshot by its type name.
func (ds *DataStore) GetGiftByName(name string) (Gift, error) {
	var gift Gift
	if err := ds.DB.Preload("Models.Owners").First(&gift, "name = ?", name).Error; err != nil {
		return Gift{}, fmt.Errorf("getting gift by name %s: %w", name, err)
	}
	return gift, nil
}

// GetAllGifts retrieves all gift snapshots without their model trees.
func (ds *DataStore) GetAllGifts() ([]Gift, error) {
	var gifts []Gift
	if result := ds.DB.Order("last_updated DESC").Find(&gifts); result.Error != nil {
		return nil, fmt.Errorf("error getting all gifts: %w", result.Error)
	}
	return gifts, nil
}

// GetAllGiftsDetailed retrieves all gift snapshots with their full model
// and owner trees preloaded.
func (ds *DataStore) GetAllGiftsDetailed() ([]Gift, error) {
	var gifts []Gift
	if result := ds.DB.Preload("Models.Owners").Order("last_updated DESC").Find(&gifts); result.Error != nil {
		return nil, fmt.Errorf("error getting detailed gifts: %w", result.Error)
	}
	return gifts, nil
}

// SearchGifts retrieves a filtered, paginated gift listing. Sold-out gifts
// sort after active ones, then by remaining count ascending.
func (ds *DataStore) SearchGifts(filter GiftFilter, limit, offset int) ([]Gift, int64, error) {
	query := ds.DB.Model(&Gift{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.MinRemaining > 0 {
		query = query.Where("remaining >= ?", filter.MinRemaining)
	}
	if filter.MaxRemaining > 0 {
		query = query.Where("remaining <= ?", filter.MaxRemaining)
	}
	if filter.MinStars > 0 {
		query = query.Where("star_count >= ?", filter.MinStars)
	}
	if filter.MaxStars > 0 {
		query = query.Where("star_count <= ?", filter.MaxStars)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting gifts: %w", err)
	}

	var gifts []Gift
	err := query.
		Order("CASE WHEN status = 'sold_out' THEN 2 ELSE 1 END, remaining ASC").
		Limit(limit).
		Offset(offset).
		Find(&gifts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("searching gifts: %w", err)
	}

	return gifts, total, nil
}

// GetActiveGifts retrieves all gifts that have not sold out yet.
func (ds *DataStore) GetActiveGifts() ([]Gift, error) {
	var gifts []Gift
	if err := ds.DB.Where("status = ?", StatusActive).Find(&gifts).Error; err != nil {
		return nil, fmt.Errorf("error getting active gifts: %w", err)
	}
	return gifts, nil
}

// CountGifts returns the number of tracked gifts.
func (ds *DataStore) CountGifts() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Gift{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting gifts: %w", err)
	}
	return count, nil
}

// LatestUpdate returns the most recent last_updated timestamp across all
// gifts, or the zero time when no gift exists.
func (ds *DataStore) LatestUpdate() (time.Time, error) {
	var gift Gift
	err := ds.DB.Order("last_updated DESC").First(&gift).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("getting latest update time: %w", err)
	}
	return gift.LastUpdated, nil
}

// ArchiveGift stores an immutable copy of a retired gift snapshot.
func (ds *DataStore) ArchiveGift(archive *GiftArchive) error {
	if err := ds.DB.Create(archive).Error; err != nil {
		return fmt.Errorf("archiving gift %s: %w", archive.GiftID, err)
	}
	return nil
}

// GetGiftArchives retrieves archived snapshots of a gift, most recent first.
func (ds *DataStore) GetGiftArchives(giftID string, limit int) ([]GiftArchive, error) {
	var archives []GiftArchive
	query := ds.DB.Where("gift_id = ?", giftID).Order("replaced_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("getting archives for gift %s: %w", giftID, err)
	}
	return archives, nil
}

// PruneGiftArchives deletes all but the most recent keep archives of a gift.
func (ds *DataStore) PruneGiftArchives(giftID string, keep int) error {
	if keep < 1 {
		return fmt.Errorf("invalid archive retention: %d", keep)
	}

	var keepIDs []uint
	err := ds.DB.Model(&GiftArchive{}).
		Where("gift_id = ?", giftID).
		Order("replaced_at DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return fmt.Errorf("selecting archives to keep for gift %s: %w", giftID, err)
	}
	if len(keepIDs) == 0 {
		return nil
	}

	err = ds.DB.Where("gift_id = ? AND id NOT IN ?", giftID, keepIDs).
		Delete(&GiftArchive{}).Error
	if err != nil {
		return fmt.Errorf("pruning archives for gift %s: %w", giftID, err)
	}
	return nil
}

// AppendGiftHistory appends one ledger entry. Entries are never updated.
func (ds *DataStore) AppendGiftHistory(entry *GiftHistory) error {
	if err := ds.DB.Create(entry).Error; err != nil {
		return fmt.Errorf("appending history for gift %s: %w", entry.GiftID, err)
	}
	return nil
}

// LatestGiftHistory retrieves the most recent ledger entry of a gift, or nil
// when the gift has no history yet.
func (ds *DataStore) LatestGiftHistory(giftID string) (*GiftHistory, error) {
	var entry GiftHistory
	err := ds.DB.Where("gift_id = ?", giftID).
		Order("timestamp DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest history for gift %s: %w", giftID, err)
	}
	return &entry, nil
}

// GetGiftHistoryWindow retrieves ledger entries of a gift inside [since, until],
// ordered by timestamp ascending.
func (ds *DataStore) GetGiftHistoryWindow(giftID string, since, until time.Time) ([]GiftHistory, error) {
	var entries []GiftHistory
	err := ds.DB.Where("gift_id = ? AND timestamp >= ? AND timestamp <= ?", giftID, since, until).
		Order("timestamp ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("getting history window for gift %s: %w", giftID, err)
	}
	return entries, nil
}

// GetGiftHistoryPage retrieves a filtered, paginated slice of a gift's ledger,
// most recent first.
func (ds *DataStore) GetGiftHistoryPage(giftID string, filter HistoryFilter, limit, offset int) ([]GiftHistory, int64, error) {
	query := ds.DB.Model(&GiftHistory{}).Where("gift_id = ?", giftID)

	if !filter.Since.IsZero() {
		query = query.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("timestamp <= ?", filter.Until)
	}
	if filter.MinDelta != nil {
		query = query.Where("delta >= ?", *filter.MinDelta)
	}
	if filter.MaxDelta != nil {
		query = query.Where("delta <= ?", *filter.MaxDelta)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting history for gift %s: %w", giftID, err)
	}

	var entries []GiftHistory
	err := query.Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("getting history page for gift %s: %w", giftID, err)
	}

	return entries, total, nil
}

// SavePrediction appends a new prediction record for a gift.
func (ds *DataStore) SavePrediction(prediction *GiftPrediction) error {
	if err := ds.DB.Create(prediction).Error; err != nil {
		return fmt.Errorf("saving prediction for gift %s: %w", prediction.GiftID, err)
	}
	return nil
}

// LatestPrediction retrieves the most recent prediction of a gift, or nil
// when none exists yet.
func (ds *DataStore) LatestPrediction(giftID string) (*GiftPrediction, error) {
	var prediction GiftPrediction
	err := ds.DB.Where("gift_id = ?", giftID).
		Order("created_at DESC").
		First(&prediction).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest prediction for gift %s: %w", giftID, err)
	}
	return &prediction, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Gift{}, &GiftModel{}, &GiftOwner{}, &GiftArchive{}, &GiftHistory{}, &GiftPrediction{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
