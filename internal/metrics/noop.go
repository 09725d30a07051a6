package metrics

import "time"

// NoopSink is used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobSubmitted()                                           {}
func (n *NoopSink) StatusChecked()                                          {}
func (n *NoopSink) JobFinished(status string, wait time.Duration)           {}
func (n *NoopSink) PageFetched(detections int)                              {}
func (n *NoopSink) PageFailed()                                             {}
func (n *NoopSink) DetectionsRejected(count int)                            {}
func (n *NoopSink) RecordsWritten(written, failed int)                      {}
func (n *NoopSink) PipelineFinished(outcome string, duration time.Duration) {}

