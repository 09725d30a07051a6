package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attendance-backend/internal/metrics"
)

type JobStatus string

const (
	JobSubmitted JobStatus = "SUBMITTED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobTimedOut  JobStatus = "TIMED_OUT"
)

var jobStatusRank = map[JobStatus]int{
	JobSubmitted: 0,
	JobRunning:   1,
	JobSucceeded: 2,
	JobFailed:    2,
	JobTimedOut:  2,
}

func (s JobStatus) Terminal() bool {
	return jobStatusRank[s] == 2
}

// JobHandle is the poller's view of one face search job. Status only moves
// forward: SUBMITTED -> RUNNING -> one of the terminal states.
type JobHandle struct {
	JobId         string
	Status        JobStatus
	SubmittedAt   time.Time
	CompletedAt   time.Time
	Checks        int
	StatusMessage string
}

// advance moves the handle to next and reports whether the status changed.
// Regressions and transitions out of a terminal state are ignored.
func (h *JobHandle) advance(next JobStatus) bool {
	if h.Status.Terminal() || jobStatusRank[next] < jobStatusRank[h.Status] || h.Status == next {
		return false
	}
	h.Status = next
	if next.Terminal() {
		h.CompletedAt = time.Now()
	}
	return true
}

type PollerConfig struct {
	Interval       time.Duration
	Timeout        time.Duration
	LogStride      int
	MatchThreshold float64
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:       10 * time.Second,
		Timeout:        600 * time.Second,
		LogStride:      3,
		MatchThreshold: DefaultMatchThreshold,
	}
}

type JobPoller struct {
	provider FaceSearchProvider
	cfg      PollerConfig
	metrics  metrics.Sink
}

// NewJobPoller fills unset intervals and the log stride from
// DefaultPollerConfig.
func NewJobPoller(provider FaceSearchProvider, cfg PollerConfig, sink metrics.Sink) *JobPoller {
	defaults := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.LogStride <= 0 {
		cfg.LogStride = defaults.LogStride
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &JobPoller{provider: provider, cfg: cfg, metrics: sink}
}

func (p *JobPoller) Config() PollerConfig {
	return p.cfg
}

func (p *JobPoller) Submit(ctx context.Context, video VideoRef, collectionId string) (JobHandle, error) {
	jobId, err := p.provider.StartFaceSearch(ctx, video, collectionId, p.cfg.MatchThreshold)
	if err != nil {
		slog.Error("error starting face search", "bucket", video.Bucket, "key", video.Key, "collection_id", collectionId, "error", err)
		return JobHandle{}, fmt.Errorf("%w: %w", ErrJobSubmission, err)
	}
	if jobId == "" {
		return JobHandle{}, fmt.Errorf("%w: provider returned an empty job id", ErrJobSubmission)
	}

	p.metrics.JobSubmitted()
	slog.Info("face search job submitted", "job_id", jobId, "key", video.Key, "collection_id", collectionId)

	return JobHandle{JobId: jobId, Status: JobSubmitted, SubmittedAt: time.Now()}, nil
}

// Poll waits for the job to reach a terminal state, checking once
// immediately and then every Interval. It returns a TIMED_OUT handle and
// ErrJobTimeout once Timeout has elapsed, and a FAILED handle with
// ErrJobFailed if the provider reports failure. If ctx itself is cancelled
// the handle is returned unchanged together with the context error.
func (p *JobPoller) Poll(ctx context.Context, handle JobHandle) (JobHandle, error) {
	if handle.Status.Terminal() {
		return handle, terminalError(handle)
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if p.check(waitCtx, &handle) {
			p.metrics.JobFinished(string(handle.Status), time.Since(start))
			return handle, terminalError(handle)
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				slog.Warn("stopped polling face search job", "job_id", handle.JobId, "error", err)
				return handle, err
			}
			handle.advance(JobTimedOut)
			handle.StatusMessage = fmt.Sprintf("no terminal state after %s", p.cfg.Timeout)
			p.metrics.JobFinished(string(handle.Status), time.Since(start))
			slog.Error("face search job timed out", "job_id", handle.JobId, "checks", handle.Checks, "timeout", p.cfg.Timeout)
			return handle, terminalError(handle)
		case <-ticker.C:
		}
	}
}

// check issues one status request and reports whether the job is terminal.
func (p *JobPoller) check(ctx context.Context, handle *JobHandle) bool {
	handle.Checks++
	p.metrics.StatusChecked()

	status, err := p.provider.GetStatus(ctx, handle.JobId)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("error checking face search status", "job_id", handle.JobId, "check", handle.Checks, "error", err)
		}
		return false
	}

	var changed bool
	switch status.State {
	case ProviderSucceeded:
		changed = handle.advance(JobSucceeded)
	case ProviderFailed:
		changed = handle.advance(JobFailed)
		handle.StatusMessage = status.Message
	default:
		changed = handle.advance(JobRunning)
	}

	if changed || handle.Checks%p.cfg.LogStride == 0 {
		slog.Info("face search status", "job_id", handle.JobId, "status", handle.Status, "check", handle.Checks, "elapsed", time.Since(handle.SubmittedAt).Round(time.Second))
	}

	return handle.Status.Terminal()
}

func terminalError(handle JobHandle) error {
	switch handle.Status {
	case JobFailed:
		msg := handle.StatusMessage
		if msg == "" {
			msg = "no error message reported"
		}
		return fmt.Errorf("%w: job %s: %s", ErrJobFailed, handle.JobId, msg)
	case JobTimedOut:
		return fmt.Errorf("%w: job %s: %s", ErrJobTimeout, handle.JobId, handle.StatusMessage)
	default:
		return nil
	}
}
