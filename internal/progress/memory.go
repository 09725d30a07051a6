package progress

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryTracker keeps progress in process memory. It is used by the
// local binary and in tests.
type InMemoryTracker struct {
	mu      sync.RWMutex
	entries map[string]Progress
}

var _ Tracker = (*InMemoryTracker)(nil)

func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{entries: make(map[string]Progress)}
}

func (t *InMemoryTracker) SetStage(ctx context.Context, jobId string, stage Stage, detail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[jobId] = Progress{JobId: jobId, Stage: stage, Detail: detail, UpdatedAt: time.Now().UTC()}
	return nil
}

func (t *InMemoryTracker) Get(ctx context.Context, jobId string) (Progress, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.entries[jobId]
	if !ok {
		return Progress{}, fmt.Errorf("job %s: %w", jobId, ErrNoProgress)
	}
	return p, nil
}

type NoopTracker struct{}

var _ Tracker = NoopTracker{}

func (NoopTracker) SetStage(context.Context, string, Stage, string) error { return nil }

func (NoopTracker) Get(_ context.Context, jobId string) (Progress, error) {
	return Progress{}, fmt.Errorf("job %s: %w", jobId, ErrNoProgress)
}
