package progress

import (
	"context"
	"errors"
	"time"
)

var ErrNoProgress = errors.New("no progress recorded for job")

type Stage string

const (
	StageQueued      Stage = "queued"
	StageRoster      Stage = "enumerating_roster"
	StageSubmitting  Stage = "submitting"
	StagePolling     Stage = "polling"
	StageAggregating Stage = "aggregating"
	StageReconciling Stage = "reconciling"
	StageScoring     Stage = "scoring"
	StageWriting     Stage = "writing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
	StageTimedOut    Stage = "timed_out"
)

type Progress struct {
	JobId     string    `json:"job_id"`
	Stage     Stage     `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker records the live stage of a processing job. Updates are best
// effort: pipeline callers log failures and carry on.
type Tracker interface {
	SetStage(ctx context.Context, jobId string, stage Stage, detail string) error

	Get(ctx context.Context, jobId string) (Progress, error)
}
