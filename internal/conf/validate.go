// conf/validate.go settings validation
package conf

import (
	"fmt"

	"github.com/gifttrack/gifttrack-go/internal/errors"
)

// ValidateSettings checks the loaded settings for obvious misconfiguration.
func ValidateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no database output enabled, enable either sqlite or mysql").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return errors.Newf("both sqlite and mysql outputs enabled, pick one").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := validateSyncSettings(&settings.Sync); err != nil {
		return err
	}

	if settings.Analytics.WindowHours <= 0 {
		return validationError("analytics.windowhours must be positive, got %d", settings.Analytics.WindowHours)
	}
	if settings.Analytics.StalenessMinutes <= 0 {
		return validationError("analytics.stalenessminutes must be positive, got %d", settings.Analytics.StalenessMinutes)
	}

	return nil
}

func validateSyncSettings(sync *SyncSettings) error {
	if sync.Interval <= 0 {
		return validationError("sync.interval must be positive, got %d", sync.Interval)
	}
	if sync.BatchSize <= 0 {
		return validationError("sync.batchsize must be positive, got %d", sync.BatchSize)
	}
	if sync.BatchDelayMS < 0 {
		return validationError("sync.batchdelayms must not be negative, got %d", sync.BatchDelayMS)
	}
	if sync.ArchiveRetention < 1 {
		return validationError("sync.archiveretention must be at least 1, got %d", sync.ArchiveRetention)
	}
	return nil
}

func validationError(format string, args ...any) error {
	return errors.New(fmt.Errorf(format, args...)).
		Category(errors.CategoryValidation).
		Component("conf").
		Build()
}
