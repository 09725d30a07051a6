package metrics

import "time"

// Sink records pipeline metrics. Implementations must not block or return
// errors to the caller.
type Sink interface {
	// Poller
	JobSubmitted()
	StatusChecked()
	JobFinished(status string, wait time.Duration)

	// Aggregator
	PageFetched(detections int)
	PageFailed()
	DetectionsRejected(count int)

	// Writer
	RecordsWritten(written, failed int)

	PipelineFinished(outcome string, duration time.Duration)
}

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)
