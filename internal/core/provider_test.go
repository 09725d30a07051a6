package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"
)

// scriptedProvider plays back a fixed sequence of statuses and result pages.
// Once the status script is exhausted the last status repeats.
type scriptedProvider struct {
	mu sync.Mutex

	startErr  error
	statuses  []core.ProviderStatus
	statusErr map[int]error
	pages     []core.DetectionPage
	pageErr   map[int]error

	started     []core.VideoRef
	threshold   float64
	statusCalls int
	pageTokens  []string
}

func (p *scriptedProvider) StartFaceSearch(ctx context.Context, video core.VideoRef, collectionId string, threshold float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startErr != nil {
		return "", p.startErr
	}
	p.started = append(p.started, video)
	p.threshold = threshold
	return fmt.Sprintf("job-%d", len(p.started)), nil
}

func (p *scriptedProvider) GetStatus(ctx context.Context, jobId string) (core.ProviderStatus, error) {
	if err := ctx.Err(); err != nil {
		return core.ProviderStatus{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	call := p.statusCalls
	p.statusCalls++
	if err, ok := p.statusErr[call]; ok {
		return core.ProviderStatus{}, err
	}
	if len(p.statuses) == 0 {
		return core.ProviderStatus{State: core.ProviderInProgress}, nil
	}
	return p.statuses[min(call, len(p.statuses)-1)], nil
}

func (p *scriptedProvider) GetPage(ctx context.Context, jobId string, nextToken string) (core.DetectionPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pageTokens = append(p.pageTokens, nextToken)

	idx := 0
	if nextToken != "" {
		if _, err := fmt.Sscanf(nextToken, "page-%d", &idx); err != nil {
			return core.DetectionPage{}, errors.New("invalid token")
		}
	}
	if err, ok := p.pageErr[idx]; ok {
		return core.DetectionPage{}, err
	}
	if idx >= len(p.pages) {
		return core.DetectionPage{}, nil
	}

	page := p.pages[idx]
	if idx+1 < len(p.pages) {
		page.NextToken = fmt.Sprintf("page-%d", idx+1)
	}
	return page, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

func id(v int64) *int64 {
	return &v
}

func detection(identity int64, ts int64, similarity float64) types.DetectionEvent {
	return types.DetectionEvent{
		TimestampMs: ts,
		IdentityId:  id(identity),
		Similarity:  similarity,
		Confidence:  99,
		Pose:        types.Pose{Yaw: 10, Pitch: 5, Roll: 5},
		Quality:     types.Quality{Brightness: 70, Sharpness: 12},
		BoundingBox: types.BoundingBox{Width: 0.2, Height: 0.1},
	}
}
