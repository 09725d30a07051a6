package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	backend "attendance-backend/internal/api"
	"attendance-backend/internal/chat"
	"attendance-backend/internal/config"
	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"
	"attendance-backend/internal/database"
	"attendance-backend/internal/facesearch"
	"attendance-backend/internal/metrics"
	"attendance-backend/internal/progress"
	"attendance-backend/internal/query"
	"attendance-backend/internal/roster"
	"attendance-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(v int64) *int64 { return &v }

func seen(student int64, ts int64) types.DetectionEvent {
	return types.DetectionEvent{
		TimestampMs: ts,
		IdentityId:  identity(student),
		Similarity:  95,
		Confidence:  99,
		Pose:        types.Pose{Yaw: 5, Pitch: 5, Roll: 2},
		Quality:     types.Quality{Brightness: 70, Sharpness: 15},
		BoundingBox: types.BoundingBox{Width: 0.15, Height: 0.1},
	}
}

func waitForJob(t *testing.T, router http.Handler, jobId string) api.ProcessingJob {
	var job api.ProcessingJob
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, httpRequest(router, "GET", "/jobs/"+jobId, nil, &job))
		if job.Status != database.JobQueued && job.Status != database.JobRunning {
			return job
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, last status %s", jobId, job.Status)
	return job
}

func TestAttendanceWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)
	store := setupObjectStore(t, ctx)
	publisher, receiver := setupRabbitMQContainer(t, ctx)

	redisClient, err := progress.NewRedisClient(ctx, setupRedisContainer(t, ctx))
	require.NoError(t, err)
	tracker := progress.NewRedisTracker(redisClient, time.Hour)

	for id := int64(1); id <= 3; id++ {
		key := fmt.Sprintf("photos/student_%d.jpg", id)
		require.NoError(t, store.PutObject(ctx, key, bytes.NewReader([]byte("jpg")), "image/jpeg"))
	}
	require.NoError(t, store.PutObject(ctx, "videos/record_001.mp4", bytes.NewReader([]byte("mp4")), "video/mp4"))

	dump, err := json.Marshal(facesearch.DetectionDump{
		PendingChecks: 1,
		Detections:    []types.DetectionEvent{seen(1, 0), seen(2, 5000), seen(1, 90000), seen(2, 30000)},
	})
	require.NoError(t, err)
	require.NoError(t, store.PutObject(ctx, facesearch.DumpKey("videos/record_001.mp4"), bytes.NewReader(dump), "application/json"))

	faces := facesearch.NewReplayProvider(store, 2)
	records := database.NewRecordTable(db)

	pipeline := core.NewPipeline(core.PipelineConfig{
		Bucket:           mediaBucket,
		CollectionId:     "students",
		PhotoPrefix:      "photos/",
		ResultsPrefix:    "rekognition-results/",
		EmailDomain:      "university.edu",
		WriteConcurrency: 2,
		Poller: core.PollerConfig{
			Interval:       50 * time.Millisecond,
			Timeout:        10 * time.Second,
			LogStride:      3,
			MatchThreshold: core.DefaultMatchThreshold,
		},
		Aggregator: core.DefaultAggregatorConfig(),
		Scoring:    core.DefaultScoringConfig(),
	}, core.PipelineDeps{
		Provider: faces,
		Store:    store,
		Records:  records,
		Classes:  config.DefaultClassCatalog(),
		Tracker:  tracker,
		Metrics:  metrics.NewPrometheusSink(prometheus.NewRegistry()),
	})

	indexer := facesearch.NewPhotoIndexer(faces, &roster.Loader{
		Store:       store,
		Bucket:      mediaBucket,
		PhotoPrefix: "photos/",
		EmailDomain: "university.edu",
	}, 2)

	worker := core.NewTaskProcessor(db, pipeline, indexer, publisher, receiver, core.TaskProcessorOptions{CollectionId: "students"})
	go worker.Start()

	queries := query.NewService(records)
	router := chi.NewRouter()
	backend.NewBackendService(db, store, publisher, tracker, queries).AddRoutes(router)
	backend.NewChatService(db, chat.NewAssistant(db, nil, queries, 4)).AddRoutes(router)

	var submitted api.SubmitSessionResponse
	require.NoError(t, httpRequest(router, "POST", "/sessions", api.SubmitSessionRequest{VideoKey: "videos/record_001.mp4"}, &submitted))
	assert.Equal(t, "session_record_001", submitted.SessionId)

	job := waitForJob(t, router, submitted.JobId.String())
	require.Equal(t, database.JobCompleted, job.Status, job.ErrorMessage)
	assert.Equal(t, 3, job.StudentsExpected)
	assert.Equal(t, 2, job.StudentsDetected)
	assert.Equal(t, 3, job.RecordsWritten)
	assert.NotEmpty(t, job.ProviderJobId)

	var jobProgress api.JobProgress
	require.NoError(t, httpRequest(router, "GET", "/jobs/"+submitted.JobId.String()+"/progress", nil, &jobProgress))
	assert.Equal(t, string(progress.StageCompleted), jobProgress.Stage)

	var summary query.Summary
	require.NoError(t, httpRequest(router, "GET", "/sessions/session_record_001/summary", nil, &summary))
	assert.Equal(t, 3, summary.TotalStudents)
	assert.Equal(t, 2, summary.Present)
	assert.Equal(t, 1, summary.Absent)

	var absentees query.AbsenteeReport
	require.NoError(t, httpRequest(router, "GET", "/sessions/session_record_001/absentees", nil, &absentees))
	require.Len(t, absentees.AbsentStudents, 1)
	assert.Equal(t, int64(3), absentees.AbsentStudents[0].StudentId)

	var student query.StudentReport
	require.NoError(t, httpRequest(router, "GET", "/students/1", nil, &student))
	require.Len(t, student.Records, 1)
	assert.Equal(t, 90.0, student.Records[0].PresenceDurationSec)

	var audit query.StatusAudit
	require.NoError(t, httpRequest(router, "GET", "/audit/status", nil, &audit))
	assert.Equal(t, 3, audit.Booleans)
	assert.Empty(t, audit.NonCanonical)

	artifact, err := store.GetObject(ctx, core.ResultsKey("rekognition-results/", "record_001"))
	require.NoError(t, err)
	var results core.SessionResults
	require.NoError(t, json.Unmarshal(artifact, &results))
	assert.Len(t, results.Students, 3)

	var indexed api.IndexRosterResponse
	require.NoError(t, httpRequest(router, "POST", "/roster/index", api.IndexRosterRequest{}, &indexed))
	assert.True(t, indexed.Queued)
}
