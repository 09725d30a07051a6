package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"attendance-backend/internal/core/status"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
	JobTimedOut  string = "TIMED_OUT"
)

// ProcessingJob tracks one uploaded session video through the pipeline.
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

// AttendanceRecord is one row per (session, roster member). RecordId is
// "<session_id>#<student_id>".
type AttendanceRecord struct {
	RecordId   string `gorm:"primaryKey;size:255"`
	SessionId  string `gorm:"index;not null"`
	RecordName string
	StudentId  int64 `gorm:"index;not null"`

	StudentName  string
	StudentEmail string
	PhotoURL     string

	// Status holds the presence flag as raw JSON. New rows are written as a
	// JSON boolean but older producers wrote strings and numbers, so reads
	// must go through Presence.
	Status StatusField `gorm:"type:jsonb"`

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

	AttendanceScore       float64
	EngagementScore       float64
	SpeakingTimeSec       int
	SpeakingTimeEstimated bool `gorm:"default:true"`

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

func (r *AttendanceRecord) Presence() status.Value {
	return status.ParseJSON(r.Status)
}

// StatusField is the raw JSON text of a presence flag. Drivers hand the
// column back as whatever type the stored value ended up with (sqlite keeps
// legacy 1/0 flags as integers), so Scan re-encodes scalars as JSON.
type StatusField []byte

func (f *StatusField) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*f = nil
	case []byte:
		*f = append(StatusField(nil), v...)
	case string:
		*f = StatusField(v)
	case int64, float64, bool:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("error encoding status value %v: %w", v, err)
		}
		*f = data
	default:
		return fmt.Errorf("unsupported status column type %T", value)
	}
	return nil
}

func (f StatusField) Value() (driver.Value, error) {
	if len(f) == 0 {
		return nil, nil
	}
	return string(f), nil
}

// StatusJSON encodes a presence value in the canonical form: true, false or
// null for unknown.
func StatusJSON(v status.Value) StatusField {
	data, _ := json.Marshal(v.Repr())
	return data
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
	MessageType string    // 'human', 'ai' or 'tool'
	Content     string
	Timestamp   time.Time      `gorm:"autoCreateTime"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"` // tool calls and tool responses
}
