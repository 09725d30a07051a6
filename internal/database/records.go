package database

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecordFilter struct {
	SessionId string
	StudentId *int64
}

// RecordTable stores attendance records keyed by "<session_id>#<student_id>".
// Writes are single item upserts.
type RecordTable struct {
	db *gorm.DB

	// SQLite only supports one writer at a time.
	writeLock *sync.Mutex
}

func NewRecordTable(db *gorm.DB) *RecordTable {
	table := &RecordTable{db: db}
	if name := db.Dialector.Name(); name == "sqlite" || name == "sqlite3" {
		table.writeLock = &sync.Mutex{}
	}
	return table
}

func RecordKey(sessionId string, studentId int64) string {
	return fmt.Sprintf("%s#%d", sessionId, studentId)
}

func (t *RecordTable) PutItem(ctx context.Context, record *AttendanceRecord) error {
	if record.RecordId == "" {
		record.RecordId = RecordKey(record.SessionId, record.StudentId)
	}

	if t.writeLock != nil {
		t.writeLock.Lock()
		defer t.writeLock.Unlock()
	}

	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("error writing record %s: %w", record.RecordId, err)
	}
	return nil
}

// DeleteStale removes the session's records for students not in keep and
// returns how many were removed. An empty keep clears the session.
func (t *RecordTable) DeleteStale(ctx context.Context, sessionId string, keep []int64) (int64, error) {
	if t.writeLock != nil {
		t.writeLock.Lock()
		defer t.writeLock.Unlock()
	}

	query := t.db.WithContext(ctx).Where("session_id = ?", sessionId)
	if len(keep) > 0 {
		query = query.Where("student_id NOT IN ?", keep)
	}

	result := query.Delete(&AttendanceRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("error deleting stale records for session %s: %w", sessionId, result.Error)
	}
	return result.RowsAffected, nil
}

// Scan returns every record matching the filter, ordered by record id.
// Empty filter fields match everything.
func (t *RecordTable) Scan(ctx context.Context, filter RecordFilter) ([]AttendanceRecord, error) {
	query := t.db.WithContext(ctx).Model(&AttendanceRecord{})
	if filter.SessionId != "" {
		query = query.Where("session_id = ?", filter.SessionId)
	}
	if filter.StudentId != nil {
		query = query.Where("student_id = ?", *filter.StudentId)
	}

	var records []AttendanceRecord
	if err := query.Order("record_id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error scanning records: %w", err)
	}
	return records, nil
}
