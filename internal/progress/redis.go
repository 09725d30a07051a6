package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Tracker = (*RedisTracker)(nil)

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// url and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}
	return client, nil
}

func progressKey(jobId string) string {
	return "attendance:job_progress:" + jobId
}

func (t *RedisTracker) SetStage(ctx context.Context, jobId string, stage Stage, detail string) error {
	data, err := json.Marshal(Progress{JobId: jobId, Stage: stage, Detail: detail, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("error encoding progress: %w", err)
	}

	if err := t.client.Set(ctx, progressKey(jobId), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("error storing progress for job %s: %w", jobId, err)
	}
	return nil
}

func (t *RedisTracker) Get(ctx context.Context, jobId string) (Progress, error) {
	data, err := t.client.Get(ctx, progressKey(jobId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Progress{}, fmt.Errorf("job %s: %w", jobId, ErrNoProgress)
		}
		return Progress{}, fmt.Errorf("error loading progress for job %s: %w", jobId, err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, fmt.Errorf("error decoding progress for job %s: %w", jobId, err)
	}
	return p, nil
}
