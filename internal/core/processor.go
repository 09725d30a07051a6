package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"attendance-backend/internal/database"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VideoPipeline is satisfied by *Pipeline.
type VideoPipeline interface {
	Run(ctx context.Context, input PipelineInput) (PipelineResult, error)
}

var _ VideoPipeline = (*Pipeline)(nil)

type TaskProcessorOptions struct {
	// CollectionId is used for index tasks that do not name a collection.
	CollectionId string
	// MaxTimeoutRetries is how many times a job whose face search timed out
	// is put back on the queue before it is marked TIMED_OUT.
	MaxTimeoutRetries int
	// Concurrency is the number of tasks processed at once. Values below 1
	// mean one.
	Concurrency int
}

type TaskProcessor struct {
	db        *gorm.DB
	pipeline  VideoPipeline
	indexer   RosterIndexer
	publisher messaging.Publisher
	reciever  messaging.Reciever

	opts TaskProcessorOptions
}

func NewTaskProcessor(db *gorm.DB, pipeline VideoPipeline, indexer RosterIndexer, publisher messaging.Publisher, reciever messaging.Reciever, opts TaskProcessorOptions) *TaskProcessor {
	return &TaskProcessor{
		db:        db,
		pipeline:  pipeline,
		indexer:   indexer,
		publisher: publisher,
		reciever:  reciever,
		opts:      opts,
	}
}

// Start consumes tasks until the reciever is closed. It blocks until every
// in-flight task has finished.
func (proc *TaskProcessor) Start() {
	workers := max(proc.opts.Concurrency, 1)
	slog.Info("starting task processor", "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range proc.reciever.Tasks() {
				proc.ProcessTask(task)
			}
		}()
	}
	wg.Wait()
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
}

func rejectTask(task messaging.Task) {
	if err := task.Reject(); err != nil {
		slog.Error("error rejecting message from queue", "error", err)
	}
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.ProcessVideoQueue:
		var payload messaging.ProcessVideoPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling process video task", "error", err)
			rejectTask(task)
			return
		}
		err = proc.processVideoTask(ctx, payload)

	case messaging.IndexRosterQueue:
		var payload messaging.IndexRosterPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling index roster task", "error", err)
			rejectTask(task)
			return
		}
		err = proc.processIndexRosterTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		rejectTask(task)
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processVideoTask(ctx context.Context, payload messaging.ProcessVideoPayload) error {
	job, err := database.GetProcessingJob(ctx, proc.db, payload.JobId)
	if err != nil {
		return fmt.Errorf("error loading processing job %s: %w", payload.JobId, err)
	}

	switch job.Status {
	case database.JobCompleted, database.JobFailed, database.JobTimedOut:
		slog.Warn("skipping task for finished job", "job_id", job.Id, "status", job.Status)
		return nil
	}

	if err := database.UpdateJobStatus(ctx, proc.db, job.Id, database.JobRunning); err != nil {
		return fmt.Errorf("error marking job %s running: %w", job.Id, err)
	}

	result, runErr := proc.pipeline.Run(ctx, PipelineInput{
		JobId:    job.Id.String(),
		VideoKey: job.VideoKey,
		OnSubmitted: func(providerJobId string) {
			// Failures are logged by SetProviderJobId; FinishJob records the id again.
			_ = database.SetProviderJobId(ctx, proc.db, job.Id, providerJobId)
		},
	})

	if runErr != nil && result.Outcome == metrics.OutcomeTimedOut && payload.Attempt < proc.opts.MaxTimeoutRetries {
		return proc.requeue(ctx, job.Id, payload, runErr)
	}

	outcome := jobOutcome(result, runErr)
	if err := database.FinishJob(ctx, proc.db, job.Id, outcome); err != nil {
		return fmt.Errorf("error saving outcome of job %s: %w", job.Id, err)
	}

	if runErr != nil {
		return fmt.Errorf("job %s %s: %w", job.Id, outcome.Status, runErr)
	}
	return nil
}

func (proc *TaskProcessor) requeue(ctx context.Context, jobId uuid.UUID, payload messaging.ProcessVideoPayload, cause error) error {
	slog.Warn("face search timed out, requeueing job", "job_id", jobId, "attempt", payload.Attempt+1, "max_retries", proc.opts.MaxTimeoutRetries)

	if err := database.UpdateJobStatus(ctx, proc.db, jobId, database.JobQueued); err != nil {
		return fmt.Errorf("error requeueing job %s: %w", jobId, err)
	}

	payload.Attempt++
	if err := proc.publisher.PublishProcessVideoTask(ctx, payload); err != nil {
		outcome := JobOutcomeFor(database.JobTimedOut, cause)
		if finishErr := database.FinishJob(ctx, proc.db, jobId, outcome); finishErr != nil {
			slog.Error("error marking job timed out after failed requeue", "job_id", jobId, "error", finishErr)
		}
		return fmt.Errorf("error republishing job %s: %w", jobId, err)
	}
	return nil
}

func jobOutcome(result PipelineResult, err error) database.JobOutcome {
	status := database.JobCompleted
	if err != nil {
		status = database.JobFailed
		if result.Outcome == metrics.OutcomeTimedOut {
			status = database.JobTimedOut
		}
	}

	outcome := JobOutcomeFor(status, err)
	outcome.ProviderJobId = result.ProviderJobId
	outcome.StudentsExpected = result.StudentsExpected
	outcome.StudentsDetected = result.StudentsDetected
	outcome.TotalDetections = result.Aggregation.Detections
	outcome.RecordsWritten = result.RecordsWritten
	outcome.RecordsFailed = result.RecordsFailed
	outcome.Truncated = result.Aggregation.Truncated
	return outcome
}

// JobOutcomeFor builds the terminal job fields for status, attributing err to
// the stage that raised it.
func JobOutcomeFor(status string, err error) database.JobOutcome {
	outcome := database.JobOutcome{Status: status}
	if err == nil {
		return outcome
	}
	outcome.ErrorMessage = err.Error()
	if stage, ok := FailedStage(err); ok {
		outcome.FailedStage = string(stage)
	}
	return outcome
}

var ErrIndexingUnavailable = errors.New("roster indexing is not configured")

func (proc *TaskProcessor) processIndexRosterTask(ctx context.Context, payload messaging.IndexRosterPayload) error {
	if proc.indexer == nil {
		return ErrIndexingUnavailable
	}

	collectionId := payload.CollectionId
	if collectionId == "" {
		collectionId = proc.opts.CollectionId
	}

	report, err := proc.indexer.IndexRoster(ctx, collectionId, payload.PhotoKeys)
	if err != nil {
		return fmt.Errorf("error indexing roster into %s: %w", collectionId, err)
	}
	if report.Failed > 0 {
		slog.Warn("some roster photos could not be indexed", "collection_id", collectionId, "failed", report.Failed)
	}
	return nil
}
