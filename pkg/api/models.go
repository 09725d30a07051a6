package api

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingJob struct {
	Id            uuid.UUID `json:"id"`
	SessionId     string    `json:"session_id"`
	RecordName    string    `json:"record_name"`
	VideoKey      string    `json:"video_key"`
	ProviderJobId string    `json:"provider_job_id,omitempty"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	FailedStage   string    `json:"failed_stage,omitempty"`

	StudentsExpected int  `json:"students_expected"`
	StudentsDetected int  `json:"students_detected"`
	TotalDetections  int  `json:"total_detections"`
	RecordsWritten   int  `json:"records_written"`
	RecordsFailed    int  `json:"records_failed"`
	Truncated        bool `json:"truncated"`

	CreationTime   time.Time  `json:"creation_time"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type SubmitSessionRequest struct {
	VideoKey string `json:"video_key"`
}

type SubmitSessionResponse struct {
	JobId     uuid.UUID `json:"job_id"`
	SessionId string    `json:"session_id"`
}

type JobProgress struct {
	JobId     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListJobsParams struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
}

type IndexRosterRequest struct {
	CollectionId string   `json:"collection_id"`
	PhotoKeys    []string `json:"photo_keys"`
}

type IndexRosterResponse struct {
	CollectionId string `json:"collection_id"`
	Queued       bool   `json:"queued"`
}

type RankingParams struct {
	Limit int `schema:"limit"`
}

type StudentParams struct {
	SessionId string `schema:"session_id"`
}

type CompareParams struct {
	First  string `schema:"first"`
	Second string `schema:"second"`
}

type FindStudentsParams struct {
	Filter string `schema:"filter"`
}
