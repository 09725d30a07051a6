package migration_2

import (
	"fmt"

	"gorm.io/gorm"
)

type AttendanceRecord struct {
	RecordId              string `gorm:"primaryKey;size:255"`
	SpeakingTimeEstimated bool   `gorm:"default:true"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&AttendanceRecord{}, "SpeakingTimeEstimated"); err != nil {
		return fmt.Errorf("error adding SpeakingTimeEstimated column: %w", err)
	}

	// Every speaking time written so far came from the heuristic.
	if err := db.Model(&AttendanceRecord{}).
		Where("1 = 1").
		Update("speaking_time_estimated", true).Error; err != nil {
		return fmt.Errorf("error backfilling speaking_time_estimated: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&AttendanceRecord{}, "SpeakingTimeEstimated"); err != nil {
		return fmt.Errorf("error dropping SpeakingTimeEstimated column: %w", err)
	}
	return nil
}
