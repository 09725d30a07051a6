package facesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"
	"attendance-backend/internal/storage"

	"github.com/google/uuid"
)

const DefaultReplayPageSize = 1000

// DetectionDump is a recorded face search result stored next to the video
// it was produced from.
type DetectionDump struct {
	Status        core.ProviderState     `json:"status"`
	StatusMessage string                 `json:"status_message,omitempty"`
	PendingChecks int                    `json:"pending_checks,omitempty"`
	Detections    []types.DetectionEvent `json:"detections"`
}

// DumpKey is where the replay provider looks for the recording of a video:
// videos/record_001.mp4 is replayed from videos/record_001.detections.json.
func DumpKey(videoKey string) string {
	return strings.TrimSuffix(videoKey, path.Ext(videoKey)) + ".detections.json"
}

type replayJob struct {
	dump   DetectionDump
	checks int
}

// ReplayProvider serves recorded detection dumps from the object store as if
// they came from a live face search. It backs the local binary, which has no
// access to a video analysis service.
type ReplayProvider struct {
	store    storage.ObjectStore
	pageSize int

	mu   sync.Mutex
	jobs map[string]*replayJob
}

var _ core.FaceSearchProvider = (*ReplayProvider)(nil)

func NewReplayProvider(store storage.ObjectStore, pageSize int) *ReplayProvider {
	if pageSize <= 0 {
		pageSize = DefaultReplayPageSize
	}
	return &ReplayProvider{store: store, pageSize: pageSize, jobs: make(map[string]*replayJob)}
}

func (p *ReplayProvider) StartFaceSearch(ctx context.Context, video core.VideoRef, collectionId string, threshold float64) (string, error) {
	key := DumpKey(video.Key)
	data, err := p.store.GetObject(ctx, key)
	if err != nil {
		return "", fmt.Errorf("error loading detection dump %s: %w", key, err)
	}

	var dump DetectionDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return "", fmt.Errorf("error parsing detection dump %s: %w", key, err)
	}
	if dump.Status == "" {
		dump.Status = core.ProviderSucceeded
	}

	// Matches below the requested threshold are reported without an identity,
	// the same way a live search omits them.
	for i := range dump.Detections {
		if dump.Detections[i].Similarity < threshold {
			dump.Detections[i].IdentityId = nil
		}
	}

	jobId := uuid.NewString()

	p.mu.Lock()
	p.jobs[jobId] = &replayJob{dump: dump}
	p.mu.Unlock()

	slog.Info("replaying detection dump", "job_id", jobId, "dump", key, "collection_id", collectionId, "detections", len(dump.Detections))

	return jobId, nil
}

func (p *ReplayProvider) job(jobId string) (*replayJob, error) {
	job, ok := p.jobs[jobId]
	if !ok {
		return nil, fmt.Errorf("unknown replay job %s", jobId)
	}
	return job, nil
}

func (p *ReplayProvider) GetStatus(ctx context.Context, jobId string) (core.ProviderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, err := p.job(jobId)
	if err != nil {
		return core.ProviderStatus{}, err
	}

	job.checks++
	if job.checks <= job.dump.PendingChecks {
		return core.ProviderStatus{State: core.ProviderInProgress}, nil
	}
	return core.ProviderStatus{State: job.dump.Status, Message: job.dump.StatusMessage}, nil
}

func (p *ReplayProvider) GetPage(ctx context.Context, jobId string, nextToken string) (core.DetectionPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, err := p.job(jobId)
	if err != nil {
		return core.DetectionPage{}, err
	}

	start := 0
	if nextToken != "" {
		start, err = strconv.Atoi(nextToken)
		if err != nil || start < 0 || start > len(job.dump.Detections) {
			return core.DetectionPage{}, fmt.Errorf("invalid pagination token '%s'", nextToken)
		}
	}

	end := min(start+p.pageSize, len(job.dump.Detections))
	page := core.DetectionPage{
		Detections: append([]types.DetectionEvent(nil), job.dump.Detections[start:end]...),
	}
	if end < len(job.dump.Detections) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

var _ FaceIndexer = (*ReplayProvider)(nil)

func (p *ReplayProvider) EnsureCollection(ctx context.Context, collectionId string) error {
	return nil
}

// IndexFace accepts any photo that exists in the store. Replayed detections
// already carry their student ids, so there is nothing to enroll.
func (p *ReplayProvider) IndexFace(ctx context.Context, collectionId, bucket, photoKey string, studentId int64) (IndexedFace, error) {
	if _, err := p.store.GetObject(ctx, photoKey); err != nil {
		return IndexedFace{}, fmt.Errorf("error reading roster photo %s: %w", photoKey, err)
	}
	return IndexedFace{FaceId: "replay-" + strconv.FormatInt(studentId, 10), Confidence: 100}, nil
}
