package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"attendance-backend/internal/config"
	"attendance-backend/internal/core/status"
	"attendance-backend/internal/core/types"
	"attendance-backend/internal/core/utils"
	"attendance-backend/internal/database"
	"attendance-backend/internal/metrics"
	"attendance-backend/internal/progress"
	"attendance-backend/internal/roster"
	"attendance-backend/internal/storage"
)

// RecordWriter persists attendance records. PutItem upserts one record on
// its composite key; DeleteStale drops a session's records for students no
// longer on the roster.
type RecordWriter interface {
	PutItem(ctx context.Context, record *database.AttendanceRecord) error
	DeleteStale(ctx context.Context, sessionId string, keep []int64) (int64, error)
}

var _ RecordWriter = (*database.RecordTable)(nil)

type PipelineConfig struct {
	Bucket           string
	CollectionId     string
	PhotoPrefix      string
	ResultsPrefix    string
	EmailDomain      string
	WriteConcurrency int

	Poller     PollerConfig
	Aggregator AggregatorConfig
	Scoring    ScoringConfig
}

func NewPipelineConfig(cfg config.PipelineConfig) PipelineConfig {
	return PipelineConfig{
		Bucket:           cfg.MediaBucket,
		CollectionId:     cfg.CollectionId,
		PhotoPrefix:      cfg.PhotoPrefix,
		ResultsPrefix:    cfg.ResultsPrefix,
		EmailDomain:      cfg.EmailDomain,
		WriteConcurrency: cfg.WriteConcurrency,
		Poller: PollerConfig{
			Interval:       cfg.PollInterval,
			Timeout:        cfg.PollTimeout,
			LogStride:      cfg.StatusLogStride,
			MatchThreshold: cfg.MatchThreshold,
		},
		Aggregator: AggregatorConfig{
			Threshold: cfg.MatchThreshold,
			Gate:      GateField(cfg.AdmissionGate),
			MaxPages:  cfg.MaxResultPages,
		},
		Scoring: ScoringConfig{
			MaxSessionSec: cfg.MaxSessionSec,
			MinBBoxArea:   cfg.MinBBoxArea,
			MaxBBoxArea:   cfg.MaxBBoxArea,
		},
	}
}

type PipelineDeps struct {
	Provider FaceSearchProvider
	Store    storage.ObjectStore
	Records  RecordWriter
	Classes  *config.ClassCatalog
	Tracker  progress.Tracker
	Metrics  metrics.Sink
}

// Pipeline turns one session video into attendance records for the whole
// roster: submit and poll the face search, aggregate the detections,
// reconcile against the roster, score and write.
type Pipeline struct {
	cfg PipelineConfig

	poller     *JobPoller
	aggregator *Aggregator
	scorer     *Scorer
	roster     *roster.Loader

	store   storage.ObjectStore
	records RecordWriter
	classes *config.ClassCatalog
	tracker progress.Tracker
	metrics metrics.Sink

	now func() time.Time
}

func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopSink()
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.NoopTracker{}
	}
	if deps.Classes == nil {
		deps.Classes = config.DefaultClassCatalog()
	}
	if cfg.WriteConcurrency <= 0 {
		cfg.WriteConcurrency = 1
	}

	return &Pipeline{
		cfg:        cfg,
		poller:     NewJobPoller(deps.Provider, cfg.Poller, deps.Metrics),
		aggregator: NewAggregator(deps.Provider, cfg.Aggregator, deps.Metrics),
		scorer:     NewScorer(cfg.Scoring),
		roster: &roster.Loader{
			Store:       deps.Store,
			Bucket:      cfg.Bucket,
			PhotoPrefix: cfg.PhotoPrefix,
			EmailDomain: cfg.EmailDomain,
		},
		store:   deps.Store,
		records: deps.Records,
		classes: deps.Classes,
		tracker: deps.Tracker,
		metrics: deps.Metrics,
		now:     time.Now,
	}
}

type PipelineInput struct {
	// JobId is the processing job this run belongs to. It keys progress
	// updates and is copied into the results artifact.
	JobId    string
	VideoKey string

	// OnSubmitted, if set, is called once the provider has accepted the job.
	OnSubmitted func(providerJobId string)
}

type PipelineResult struct {
	JobId         string `json:"job_id"`
	SessionId     string `json:"session_id"`
	RecordName    string `json:"record_name"`
	ProviderJobId string `json:"provider_job_id,omitempty"`
	Outcome       string `json:"outcome"`

	StudentsExpected int            `json:"students_expected"`
	StudentsDetected int            `json:"students_detected"`
	StudentsAbsent   int            `json:"students_absent"`
	Aggregation      AggregateStats `json:"aggregation"`
	ResultsKey       string         `json:"results_key,omitempty"`

	RecordsWritten int           `json:"records_written"`
	RecordsFailed  int           `json:"records_failed"`
	RecordsPruned  int           `json:"records_pruned"`
	Duration       time.Duration `json:"duration"`
}

// SessionResults is the intermediate artifact written to the results
// prefix after reconciliation.
type SessionResults struct {
	JobId            string                       `json:"job_id"`
	SessionId        string                       `json:"session_id"`
	RecordName       string                       `json:"record_id"`
	VideoKey         string                       `json:"video_key"`
	ProviderJobId    string                       `json:"rekognition_job_id"`
	ProcessedAt      time.Time                    `json:"processed_at"`
	TotalDetections  int                          `json:"total_detections"`
	Aggregation      AggregateStats               `json:"aggregation"`
	StudentsExpected int                          `json:"students_expected"`
	StudentsDetected int                          `json:"students_detected"`
	StudentsAbsent   int                          `json:"students_absent"`
	Students         map[string]types.MemberStats `json:"student_data"`
}

func ResultsKey(prefix, recordName string) string {
	return prefix + recordName + "_results.json"
}

// Run processes one video. The returned error, if any, is a *StageError.
// The result is always populated with whatever was known when the run
// stopped; Outcome is OutcomeTimedOut when the face search exceeded its
// ceiling, which callers may choose to retry.
func (p *Pipeline) Run(ctx context.Context, input PipelineInput) (result PipelineResult, err error) {
	start := p.now()
	result = PipelineResult{JobId: input.JobId, Outcome: metrics.OutcomeFailed}

	defer func() {
		result.Duration = time.Since(start)
		p.metrics.PipelineFinished(result.Outcome, result.Duration)

		stage := progress.StageCompleted
		detail := ""
		switch result.Outcome {
		case metrics.OutcomeTimedOut:
			stage, detail = progress.StageTimedOut, err.Error()
		case metrics.OutcomeFailed:
			stage = progress.StageFailed
			if err != nil {
				detail = err.Error()
			}
		}
		p.setStage(ctx, input.JobId, stage, detail)
	}()

	video, err := roster.ParseVideoKey(input.VideoKey)
	if err != nil {
		return result, stageErr(StagePoller, err)
	}
	result.SessionId = video.SessionId
	result.RecordName = video.RecordName

	slog.Info("processing session video", "job_id", input.JobId, "video_key", video.VideoKey, "session_id", video.SessionId)

	p.setStage(ctx, input.JobId, progress.StageRoster, "")
	members, err := p.roster.Load(ctx)
	if err != nil {
		return result, stageErr(StageReconciler, err)
	}
	result.StudentsExpected = len(members.Members)
	if len(members.Members) == 0 {
		slog.Warn("roster is empty, no records will be written", "prefix", p.cfg.PhotoPrefix)
	}

	p.setStage(ctx, input.JobId, progress.StageSubmitting, "")
	handle, err := p.poller.Submit(ctx, VideoRef{Bucket: p.cfg.Bucket, Key: video.VideoKey}, p.cfg.CollectionId)
	if err != nil {
		return result, stageErr(StagePoller, err)
	}
	result.ProviderJobId = handle.JobId
	if input.OnSubmitted != nil {
		input.OnSubmitted(handle.JobId)
	}

	p.setStage(ctx, input.JobId, progress.StagePolling, handle.JobId)
	handle, err = p.poller.Poll(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrJobTimeout) {
			result.Outcome = metrics.OutcomeTimedOut
		}
		return result, stageErr(StagePoller, err)
	}

	p.setStage(ctx, input.JobId, progress.StageAggregating, "")
	summaries, stats := p.aggregator.Aggregate(ctx, handle.JobId)
	result.Aggregation = stats

	p.setStage(ctx, input.JobId, progress.StageReconciling, "")
	reconciled := Reconcile(summaries, members.Ids())
	for _, m := range reconciled {
		if m.Present {
			result.StudentsDetected++
		}
	}
	result.StudentsAbsent = len(reconciled) - result.StudentsDetected

	results := SessionResults{
		JobId:            input.JobId,
		SessionId:        video.SessionId,
		RecordName:       video.RecordName,
		VideoKey:         video.VideoKey,
		ProviderJobId:    handle.JobId,
		ProcessedAt:      p.now().UTC(),
		TotalDetections:  stats.Detections,
		Aggregation:      stats,
		StudentsExpected: result.StudentsExpected,
		StudentsDetected: result.StudentsDetected,
		StudentsAbsent:   result.StudentsAbsent,
		Students:         make(map[string]types.MemberStats, len(reconciled)),
	}
	for id, m := range reconciled {
		results.Students[strconv.FormatInt(id, 10)] = m
	}
	if key, err := p.saveResults(ctx, results); err != nil {
		slog.Error("error saving session results, continuing with record writes", "session_id", video.SessionId, "error", err)
	} else {
		result.ResultsKey = key
	}

	p.setStage(ctx, input.JobId, progress.StageScoring, "")
	records := p.buildRecords(video, members, reconciled)

	p.setStage(ctx, input.JobId, progress.StageWriting, fmt.Sprintf("%d records", len(records)))
	if pruned, err := p.records.DeleteStale(ctx, video.SessionId, members.Ids()); err != nil {
		slog.Error("error removing records of students no longer on the roster", "session_id", video.SessionId, "error", err)
	} else {
		result.RecordsPruned = int(pruned)
	}
	result.RecordsWritten, result.RecordsFailed = p.writeRecords(ctx, records)
	p.metrics.RecordsWritten(result.RecordsWritten, result.RecordsFailed)

	result.Outcome = metrics.OutcomeCompleted

	slog.Info("session processed", "job_id", input.JobId, "session_id", video.SessionId,
		"expected", result.StudentsExpected, "detected", result.StudentsDetected, "absent", result.StudentsAbsent,
		"written", result.RecordsWritten, "failed", result.RecordsFailed, "truncated", stats.Truncated)

	return result, nil
}

func (p *Pipeline) saveResults(ctx context.Context, results SessionResults) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", stageErr(StageWriter, fmt.Errorf("error encoding session results: %w", err))
	}

	key := ResultsKey(p.cfg.ResultsPrefix, results.RecordName)
	if err := p.store.PutObject(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", stageErr(StageWriter, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return key, nil
}

func (p *Pipeline) buildRecords(video roster.VideoRecord, members *roster.Roster, reconciled map[int64]types.MemberStats) []*database.AttendanceRecord {
	class := p.classes.Lookup(video.RecordName)
	now := p.now().UTC()
	sessionDate := config.SessionDate(now)

	records := make([]*database.AttendanceRecord, 0, len(reconciled))
	for _, id := range SortedIds(reconciled) {
		m := reconciled[id]
		scores := p.scorer.Score(m)
		member, _ := members.Lookup(id)

		records = append(records, &database.AttendanceRecord{
			RecordId:   database.RecordKey(video.SessionId, id),
			SessionId:  video.SessionId,
			RecordName: video.RecordName,
			StudentId:  id,

			StudentName:  member.Name,
			StudentEmail: member.Email,
			PhotoURL:     member.PhotoURL,

			Status: database.StatusJSON(status.FromBool(m.Present)),

			TimeInsideClass:     int(m.PresenceDurationSec),
			PresenceDurationSec: m.PresenceDurationSec,
			TimestampStart:      m.TimestampStart,
			TimestampEnd:        m.TimestampEnd,
			Detections:          m.Detections,

			AvgConfidence: m.AvgConfidence,
			AvgSimilarity: m.AvgSimilarity,
			AvgYaw:        m.AvgYaw,
			AvgPitch:      m.AvgPitch,
			AvgRoll:       m.AvgRoll,
			AvgBrightness: m.AvgBrightness,
			AvgSharpness:  m.AvgSharpness,
			AvgBBoxArea:   m.AvgBBoxArea,

			AttendanceScore:       scores.AttendanceScore,
			EngagementScore:       scores.EngagementScore,
			SpeakingTimeSec:       scores.SpeakingTimeSec,
			SpeakingTimeEstimated: scores.SpeakingTimeEstimated,

			ClassId:      class.ClassId,
			ClassName:    class.ClassName,
			Department:   class.Department,
			Topic:        class.Topic,
			Room:         class.Room,
			Schedule:     class.Schedule,
			StartTime:    class.StartTime,
			EndTime:      class.EndTime,
			TeacherId:    class.Teacher.Id,
			TeacherName:  class.Teacher.Name,
			TeacherEmail: class.Teacher.Email,
			SessionDate:  sessionDate,

			Timestamp: now,
		})
	}
	return records
}

// writeRecords writes every record independently; a failed write is logged
// and counted but does not stop the others.
func (p *Pipeline) writeRecords(ctx context.Context, records []*database.AttendanceRecord) (int, int) {
	queue := make(chan *database.AttendanceRecord, len(records))
	for _, r := range records {
		queue <- r
	}
	close(queue)

	completed := make(chan utils.CompletedTask[*database.AttendanceRecord, string], len(records))

	worker := func(r *database.AttendanceRecord) (string, error) {
		if err := p.records.PutItem(ctx, r); err != nil {
			return "", stageErr(StageWriter, fmt.Errorf("%w: %w", ErrPersistence, err))
		}
		return r.RecordId, nil
	}

	utils.RunInPool(worker, queue, completed, p.cfg.WriteConcurrency)

	written, failed := 0, 0
	for task := range completed {
		if task.Error != nil {
			failed++
			slog.Error("error writing attendance record", "record_id", task.Input.RecordId, "error", task.Error)
			continue
		}
		written++
	}
	return written, failed
}

func (p *Pipeline) setStage(ctx context.Context, jobId string, stage progress.Stage, detail string) {
	if jobId == "" {
		return
	}
	if err := p.tracker.SetStage(ctx, jobId, stage, detail); err != nil {
		slog.Warn("error updating job progress", "job_id", jobId, "stage", stage, "error", err)
	}
}
