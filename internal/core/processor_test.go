package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"
	"attendance-backend/internal/database"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedTask struct {
	queue   string
	payload []byte

	acked, nacked, rejected bool
}

func (t *recordedTask) Type() string    { return t.queue }
func (t *recordedTask) Payload() []byte { return t.payload }
func (t *recordedTask) Ack() error      { t.acked = true; return nil }
func (t *recordedTask) Nack() error     { t.nacked = true; return nil }
func (t *recordedTask) Reject() error   { t.rejected = true; return nil }

// nextTask wraps the next queued message so the outcome can be inspected.
func nextTask(t *testing.T, queue *messaging.InMemoryQueue) *recordedTask {
	select {
	case task := <-queue.Tasks():
		return &recordedTask{queue: task.Type(), payload: task.Payload()}
	case <-time.After(time.Second):
		t.Fatal("no task on queue")
		return nil
	}
}

type fakePipeline struct {
	result core.PipelineResult
	err    error
	calls  []core.PipelineInput
}

func (p *fakePipeline) Run(ctx context.Context, input core.PipelineInput) (core.PipelineResult, error) {
	p.calls = append(p.calls, input)
	if input.OnSubmitted != nil && p.result.ProviderJobId != "" {
		input.OnSubmitted(p.result.ProviderJobId)
	}
	return p.result, p.err
}

type fakeIndexer struct {
	collections []string
	keys        [][]string
}

func (f *fakeIndexer) IndexRoster(ctx context.Context, collectionId string, photoKeys []string) (core.IndexReport, error) {
	f.collections = append(f.collections, collectionId)
	f.keys = append(f.keys, photoKeys)
	return core.IndexReport{CollectionId: collectionId, Indexed: len(photoKeys)}, nil
}

func queueJob(t *testing.T, db *gorm.DB, queue *messaging.InMemoryQueue, status string) uuid.UUID {
	job := database.ProcessingJob{
		Id:           uuid.New(),
		SessionId:    "session_record_001",
		RecordName:   "record_001",
		VideoKey:     testVideoKey,
		Status:       status,
		CreationTime: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&job).Error)
	require.NoError(t, queue.PublishProcessVideoTask(context.Background(), messaging.ProcessVideoPayload{JobId: job.Id, VideoKey: job.VideoKey}))
	return job.Id
}

func getJob(t *testing.T, db *gorm.DB, id uuid.UUID) database.ProcessingJob {
	job, err := database.GetProcessingJob(context.Background(), db, id)
	require.NoError(t, err)
	return job
}

func TestProcessVideoTaskCompletes(t *testing.T) {
	provider := &scriptedProvider{
		statuses: succeeded(),
		pages: []core.DetectionPage{
			{Detections: []types.DetectionEvent{detection(1, 0, 95), detection(1, 30000, 92)}},
		},
	}
	f := newPipelineFixture(t, provider, nil, 1, 2)

	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, f.pipeline, nil, queue, queue, core.TaskProcessorOptions{})

	jobId := queueJob(t, db, queue, database.JobQueued)
	task := nextTask(t, queue)
	proc.ProcessTask(task)

	assert.True(t, task.acked)
	job := getJob(t, db, jobId)
	assert.Equal(t, database.JobCompleted, job.Status)
	assert.Equal(t, "job-1", job.ProviderJobId.String)
	assert.Equal(t, 2, job.StudentsExpected)
	assert.Equal(t, 1, job.StudentsDetected)
	assert.Equal(t, 2, job.TotalDetections)
	assert.Equal(t, 2, job.RecordsWritten)
	assert.False(t, job.FailedStage.Valid)
	assert.True(t, job.StartTime.Valid)
	assert.True(t, job.CompletionTime.Valid)

	p, err := f.tracker.Get(context.Background(), jobId.String())
	require.NoError(t, err)
	assert.Equal(t, "completed", string(p.Stage))
}

func TestProcessVideoTaskRecordsFailure(t *testing.T) {
	provider := &scriptedProvider{
		statuses: []core.ProviderStatus{{State: core.ProviderFailed, Message: "unsupported codec"}},
	}
	f := newPipelineFixture(t, provider, nil, 1)

	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, f.pipeline, nil, queue, queue, core.TaskProcessorOptions{})

	jobId := queueJob(t, db, queue, database.JobQueued)
	task := nextTask(t, queue)
	proc.ProcessTask(task)

	assert.True(t, task.nacked)
	job := getJob(t, db, jobId)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, "poller", job.FailedStage.String)
	assert.Contains(t, job.ErrorMessage.String, "unsupported codec")
	assert.Equal(t, "job-1", job.ProviderJobId.String)
	assert.Zero(t, job.RecordsWritten)
}

func TestProcessVideoTaskRequeuesTimeouts(t *testing.T) {
	pipeline := &fakePipeline{
		result: core.PipelineResult{Outcome: metrics.OutcomeTimedOut, ProviderJobId: "rk-1", StudentsExpected: 4},
		err:    &core.StageError{Stage: core.StagePoller, Err: core.ErrJobTimeout},
	}

	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, pipeline, nil, queue, queue, core.TaskProcessorOptions{MaxTimeoutRetries: 1})

	jobId := queueJob(t, db, queue, database.JobQueued)

	first := nextTask(t, queue)
	proc.ProcessTask(first)
	assert.True(t, first.acked)
	assert.Equal(t, database.JobQueued, getJob(t, db, jobId).Status)

	retry := nextTask(t, queue)
	assert.Contains(t, string(retry.payload), `"Attempt":1`)
	proc.ProcessTask(retry)
	assert.True(t, retry.nacked)

	job := getJob(t, db, jobId)
	assert.Equal(t, database.JobTimedOut, job.Status)
	assert.Equal(t, "poller", job.FailedStage.String)
	assert.Equal(t, "rk-1", job.ProviderJobId.String)
	assert.Equal(t, 4, job.StudentsExpected)
	assert.Len(t, pipeline.calls, 2)
}

func TestProcessVideoTaskSkipsFinishedJobs(t *testing.T) {
	pipeline := &fakePipeline{}

	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, pipeline, nil, queue, queue, core.TaskProcessorOptions{})

	queueJob(t, db, queue, database.JobCompleted)
	task := nextTask(t, queue)
	proc.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Empty(t, pipeline.calls)
}

func TestProcessTaskRejectsBadMessages(t *testing.T) {
	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, &fakePipeline{}, nil, queue, queue, core.TaskProcessorOptions{})

	malformed := &recordedTask{queue: messaging.ProcessVideoQueue, payload: []byte("{not json")}
	proc.ProcessTask(malformed)
	assert.True(t, malformed.rejected)

	unknown := &recordedTask{queue: "mystery_queue", payload: []byte("{}")}
	proc.ProcessTask(unknown)
	assert.True(t, unknown.rejected)

	missing := &recordedTask{queue: messaging.ProcessVideoQueue, payload: []byte(`{"JobId":"` + uuid.NewString() + `"}`)}
	proc.ProcessTask(missing)
	assert.True(t, missing.nacked)
}

func TestProcessIndexRosterTask(t *testing.T) {
	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	indexer := &fakeIndexer{}
	proc := core.NewTaskProcessor(db, &fakePipeline{}, indexer, queue, queue, core.TaskProcessorOptions{CollectionId: "students"})

	require.NoError(t, queue.PublishIndexRosterTask(context.Background(), messaging.IndexRosterPayload{PhotoKeys: []string{"photos/student_1.jpg"}}))
	task := nextTask(t, queue)
	proc.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Equal(t, []string{"students"}, indexer.collections)
	assert.Equal(t, [][]string{{"photos/student_1.jpg"}}, indexer.keys)

	noIndexer := core.NewTaskProcessor(db, &fakePipeline{}, nil, queue, queue, core.TaskProcessorOptions{})
	require.NoError(t, queue.PublishIndexRosterTask(context.Background(), messaging.IndexRosterPayload{CollectionId: "other"}))
	task = nextTask(t, queue)
	noIndexer.ProcessTask(task)
	assert.True(t, task.nacked)
}

func TestJobOutcomeFor(t *testing.T) {
	outcome := core.JobOutcomeFor(database.JobFailed, &core.StageError{Stage: core.StageWriter, Err: core.ErrPersistence})
	assert.Equal(t, "writer", outcome.FailedStage)
	assert.Equal(t, "writer: record persistence failed", outcome.ErrorMessage)

	assert.Equal(t, database.JobOutcome{Status: database.JobCompleted}, core.JobOutcomeFor(database.JobCompleted, nil))
}

// gatedPipeline holds every run until release is closed.
type gatedPipeline struct {
	started chan string
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (p *gatedPipeline) Run(ctx context.Context, input core.PipelineInput) (core.PipelineResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	p.started <- input.JobId
	<-p.release
	return core.PipelineResult{StudentsExpected: 1}, nil
}

func TestTaskProcessorRunsTasksConcurrently(t *testing.T) {
	pipeline := &gatedPipeline{started: make(chan string, 2), release: make(chan struct{})}

	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, pipeline, nil, queue, queue, core.TaskProcessorOptions{Concurrency: 2})

	first := queueJob(t, db, queue, database.JobQueued)
	second := queueJob(t, db, queue, database.JobQueued)

	done := make(chan struct{})
	go func() {
		proc.Start()
		close(done)
	}()

	// Both runs must be in flight before either is allowed to finish.
	running := map[string]bool{}
	for len(running) < 2 {
		select {
		case id := <-pipeline.started:
			running[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 tasks started concurrently", len(running))
		}
	}
	assert.True(t, running[first.String()])
	assert.True(t, running[second.String()])

	close(pipeline.release)
	queue.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task processor did not stop after the queue closed")
	}

	assert.Equal(t, 2, pipeline.calls)
	assert.Equal(t, database.JobCompleted, getJob(t, db, first).Status)
	assert.Equal(t, database.JobCompleted, getJob(t, db, second).Status)
}
