package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"attendance-backend/internal/database"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/progress"
	"attendance-backend/internal/query"
	"attendance-backend/internal/roster"
	"attendance-backend/internal/storage"
	"attendance-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultJobListLimit = 50

type BackendService struct {
	db        *gorm.DB
	store     storage.ObjectStore
	publisher messaging.Publisher
	tracker   progress.Tracker
	queries   *query.Service
}

func NewBackendService(db *gorm.DB, store storage.ObjectStore, pub messaging.Publisher, tracker progress.Tracker, queries *query.Service) *BackendService {
	if tracker == nil {
		tracker = progress.NoopTracker{}
	}
	return &BackendService{db: db, store: store, publisher: pub, tracker: tracker, queries: queries}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitSession))
		r.Get("/", RestHandler(s.ListSessions))
		r.Get("/compare", RestHandler(s.CompareSessions))
		r.Get("/{session_id}/summary", RestHandler(s.SessionSummary))
		r.Get("/{session_id}/absentees", RestHandler(s.Absentees))
		r.Get("/{session_id}/rankings", RestHandler(s.EngagementRanking))
		r.Get("/{session_id}/students", RestHandler(s.FindStudents))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListJobs))
		r.Get("/{job_id}", RestHandler(s.GetJob))
		r.Get("/{job_id}/progress", RestHandler(s.GetJobProgress))
	})

	r.Get("/students/{student_id}", RestHandler(s.GetStudent))
	r.Get("/audit/status", RestHandler(s.AuditStatuses))
	r.Post("/roster/index", RestHandler(s.IndexRoster))
}

func (s *BackendService) SubmitSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SubmitSessionRequest](r)
	if err != nil {
		return nil, err
	}

	video, err := roster.ParseVideoKey(req.VideoKey)
	if err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid video_key: %v", err)
	}

	ctx := r.Context()

	objects, err := s.store.ListObjects(ctx, video.VideoKey)
	if err != nil {
		slog.Error("error checking session video", "video_key", video.VideoKey, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error checking session video")
	}
	found := false
	for _, obj := range objects {
		if obj.Name == video.VideoKey {
			found = true
			break
		}
	}
	if !found {
		return nil, CodedErrorf(http.StatusNotFound, "video %s not found", video.VideoKey)
	}

	job := database.ProcessingJob{
		Id:           uuid.New(),
		SessionId:    video.SessionId,
		RecordName:   video.RecordName,
		VideoKey:     video.VideoKey,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating processing job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create processing job")
	}

	if err := s.tracker.SetStage(ctx, job.Id.String(), progress.StageQueued, ""); err != nil {
		slog.Warn("error recording queued stage", "job_id", job.Id, "error", err)
	}

	if err := s.publisher.PublishProcessVideoTask(ctx, messaging.ProcessVideoPayload{JobId: job.Id, VideoKey: job.VideoKey}); err != nil {
		slog.Error("error publishing process video task", "job_id", job.Id, "error", err)
		if err := database.FinishJob(ctx, s.db, job.Id, database.JobOutcome{Status: database.JobFailed, ErrorMessage: "failed to queue processing task"}); err != nil {
			slog.Error("error marking unqueued job failed", "job_id", job.Id, "error", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue processing task")
	}

	slog.Info("submitted session video", "job_id", job.Id, "session_id", job.SessionId)
	return api.SubmitSessionResponse{JobId: job.Id, SessionId: job.SessionId}, nil
}

func (s *BackendService) ListJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListJobsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultJobListLimit
	}

	jobs, err := database.ListJobs(r.Context(), s.db, params.Status, params.Limit)
	if err != nil {
		slog.Error("error listing processing jobs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing processing jobs")
	}
	return convertJobs(jobs), nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	job, err := database.GetProcessingJob(r.Context(), s.db, jobId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "processing job not found")
		}
		slog.Error("error getting processing job", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving processing job")
	}

	return convertJob(job), nil
}

func (s *BackendService) GetJobProgress(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	p, err := s.tracker.Get(r.Context(), jobId.String())
	if err != nil {
		if errors.Is(err, progress.ErrNoProgress) {
			return nil, CodedErrorf(http.StatusNotFound, "no progress recorded for job %s", jobId)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertProgress(p), nil
}

func (s *BackendService) ListSessions(r *http.Request) (any, error) {
	list, err := s.queries.ListSessions(r.Context(), query.ListSessions{})
	if err != nil {
		return nil, queryError(err)
	}
	return list, nil
}

func (s *BackendService) SessionSummary(r *http.Request) (any, error) {
	summary, err := s.queries.SessionSummary(r.Context(), query.SessionSummary{SessionId: chi.URLParam(r, "session_id")})
	if err != nil {
		return nil, queryError(err)
	}
	return summary, nil
}

func (s *BackendService) Absentees(r *http.Request) (any, error) {
	report, err := s.queries.Absentees(r.Context(), query.Absentees{SessionId: chi.URLParam(r, "session_id")})
	if err != nil {
		return nil, queryError(err)
	}
	return report, nil
}

func (s *BackendService) EngagementRanking(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.RankingParams](r)
	if err != nil {
		return nil, err
	}

	rankings, err := s.queries.EngagementRanking(r.Context(), query.EngagementRanking{
		SessionId: chi.URLParam(r, "session_id"),
		Limit:     params.Limit,
	})
	if err != nil {
		return nil, queryError(err)
	}
	return rankings, nil
}

func (s *BackendService) FindStudents(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.FindStudentsParams](r)
	if err != nil {
		return nil, err
	}

	matches, err := s.queries.FindStudents(r.Context(), query.FindStudents{
		SessionId: chi.URLParam(r, "session_id"),
		Filter:    params.Filter,
	})
	if err != nil {
		return nil, queryError(err)
	}
	return matches, nil
}

func (s *BackendService) CompareSessions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.CompareParams](r)
	if err != nil {
		return nil, err
	}

	comparison, err := s.queries.CompareSessions(r.Context(), query.CompareSessions{First: params.First, Second: params.Second})
	if err != nil {
		return nil, queryError(err)
	}
	return comparison, nil
}

func (s *BackendService) GetStudent(r *http.Request) (any, error) {
	studentId, err := URLParamInt64(r, "student_id")
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.StudentParams](r)
	if err != nil {
		return nil, err
	}

	report, err := s.queries.StudentLookup(r.Context(), query.StudentLookup{StudentId: studentId, SessionId: params.SessionId})
	if err != nil {
		return nil, queryError(err)
	}
	return report, nil
}

func (s *BackendService) AuditStatuses(r *http.Request) (any, error) {
	audit, err := s.queries.AuditStatuses(r.Context())
	if err != nil {
		return nil, queryError(err)
	}
	return audit, nil
}

func (s *BackendService) IndexRoster(r *http.Request) (any, error) {
	req, err := ParseRequest[api.IndexRosterRequest](r)
	if err != nil {
		return nil, err
	}

	payload := messaging.IndexRosterPayload{CollectionId: req.CollectionId, PhotoKeys: req.PhotoKeys}
	if err := s.publisher.PublishIndexRosterTask(r.Context(), payload); err != nil {
		slog.Error("error publishing index roster task", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue roster indexing")
	}

	return api.IndexRosterResponse{CollectionId: req.CollectionId, Queued: true}, nil
}
