package migration_1

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProcessingJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SessionId  string `gorm:"index;not null"`
	RecordName string `gorm:"not null"`
	VideoKey   string `gorm:"not null"`

	ProviderJobId sql.NullString
	Status        string `gorm:"size:20;not null"`
	ErrorMessage  sql.NullString
	FailedStage   sql.NullString

	StudentsExpected int  `gorm:"default:0"`
	StudentsDetected int  `gorm:"default:0"`
	TotalDetections  int  `gorm:"default:0"`
	RecordsWritten   int  `gorm:"default:0"`
	RecordsFailed    int  `gorm:"default:0"`
	Truncated        bool `gorm:"default:false"`

	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime
}

// AttendanceRecord as first deployed, before speaking time was flagged as
// an estimate.
type AttendanceRecord struct {
	RecordId   string `gorm:"primaryKey;size:255"`
	SessionId  string `gorm:"index;not null"`
	RecordName string
	StudentId  int64 `gorm:"index;not null"`

	StudentName  string
	StudentEmail string
	PhotoURL     string

	Status datatypes.JSON `gorm:"type:jsonb"`

	TimeInsideClass     int
	PresenceDurationSec float64
	TimestampStart      int64
	TimestampEnd        int64
	Detections          int

	AvgConfidence float64
	AvgSimilarity float64
	AvgYaw        float64
	AvgPitch      float64
	AvgRoll       float64
	AvgBrightness float64
	AvgSharpness  float64
	AvgBBoxArea   float64

	AttendanceScore float64
	EngagementScore float64
	SpeakingTimeSec int

	ClassId      string
	ClassName    string
	Department   string
	Topic        string
	Room         string
	Schedule     string
	StartTime    string
	EndTime      string
	TeacherId    string
	TeacherName  string
	TeacherEmail string
	SessionDate  string `gorm:"index"`

	Timestamp time.Time
}

type ChatSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title        string    `gorm:"not null"`
	SessionId    sql.NullString
	CreationTime time.Time
}

type ChatHistory struct {
	ID          uint      `gorm:"primaryKey"`
	SessionID   uuid.UUID `gorm:"type:uuid;index"`
	MessageType string
	Content     string
	Timestamp   time.Time      `gorm:"autoCreateTime"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&ProcessingJob{}, &AttendanceRecord{}, &ChatSession{}, &ChatHistory{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&ChatHistory{}, &ChatSession{}, &AttendanceRecord{}, &ProcessingJob{}); err != nil {
		return fmt.Errorf("rollback of initial migration failed: %w", err)
	}
	return nil
}
