package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case JobRunning:
		updates["start_time"] = time.Now().UTC()
	case JobCompleted, JobFailed, JobTimedOut:
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&ProcessingJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating processing job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func SetProviderJobId(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, providerJobId string) error {
	if err := txn.WithContext(ctx).Model(&ProcessingJob{Id: jobId}).Update("provider_job_id", providerJobId).Error; err != nil {
		slog.Error("error saving provider job id", "job_id", jobId, "provider_job_id", providerJobId, "error", err)
		return err
	}
	return nil
}

type JobOutcome struct {
	Status           string
	ProviderJobId    string
	StudentsExpected int
	StudentsDetected int
	TotalDetections  int
	RecordsWritten   int
	RecordsFailed    int
	Truncated        bool
	FailedStage      string
	ErrorMessage     string
}

// FinishJob stores the terminal state of a processing job along with its
// counters.
func FinishJob(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, outcome JobOutcome) error {
	updates := map[string]any{
		"status":            outcome.Status,
		"students_expected": outcome.StudentsExpected,
		"students_detected": outcome.StudentsDetected,
		"total_detections":  outcome.TotalDetections,
		"records_written":   outcome.RecordsWritten,
		"records_failed":    outcome.RecordsFailed,
		"truncated":         outcome.Truncated,
		"completion_time":   time.Now().UTC(),
	}
	if outcome.ProviderJobId != "" {
		updates["provider_job_id"] = outcome.ProviderJobId
	}
	if outcome.FailedStage != "" {
		updates["failed_stage"] = sql.NullString{String: outcome.FailedStage, Valid: true}
	}
	if outcome.ErrorMessage != "" {
		updates["error_message"] = sql.NullString{String: outcome.ErrorMessage, Valid: true}
	}

	if err := txn.WithContext(ctx).Model(&ProcessingJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error finishing processing job", "job_id", jobId, "status", outcome.Status, "error", err)
		return err
	}
	return nil
}

func GetProcessingJob(ctx context.Context, txn *gorm.DB, jobId uuid.UUID) (ProcessingJob, error) {
	var job ProcessingJob
	err := txn.WithContext(ctx).First(&job, "id = ?", jobId).Error
	return job, err
}

func ListQueuedJobs(ctx context.Context, txn *gorm.DB) ([]ProcessingJob, error) {
	var jobs []ProcessingJob
	err := txn.WithContext(ctx).Where("status = ?", JobQueued).Order("creation_time ASC").Find(&jobs).Error
	return jobs, err
}

// ListJobs returns the most recently created jobs first, optionally filtered
// by status.
func ListJobs(ctx context.Context, txn *gorm.DB, status string, limit int) ([]ProcessingJob, error) {
	q := txn.WithContext(ctx).Order("creation_time DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []ProcessingJob
	err := q.Find(&jobs).Error
	return jobs, err
}
