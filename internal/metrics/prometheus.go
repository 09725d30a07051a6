package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with the prometheus client. Collectors that
// fail to register are logged and still usable, they are just not exported.
type PrometheusSink struct {
	jobsSubmitted   prometheus.Counter
	statusChecks    prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobWait         prometheus.Histogram
	pagesFetched    prometheus.Counter
	pageFailures    prometheus.Counter
	detections      prometheus.Counter
	rejected        prometheus.Counter
	recordsWritten  *prometheus.CounterVec
	pipelines       *prometheus.CounterVec
	pipelineSeconds prometheus.Histogram
}

var _ Sink = (*PrometheusSink)(nil)

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_poller_jobs_submitted_total",
			Help: "Face search jobs submitted to the provider.",
		}),
		statusChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_poller_status_checks_total",
			Help: "Status checks issued against running face search jobs.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_poller_jobs_finished_total",
			Help: "Face search jobs by terminal status.",
		}, []string{"status"}),
		jobWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_poller_wait_seconds",
			Help:    "Time spent waiting for a face search job to reach a terminal state.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 900},
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_aggregator_pages_total",
			Help: "Result pages fetched from the provider.",
		}),
		pageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_aggregator_page_failures_total",
			Help: "Result page fetches that failed and truncated aggregation.",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_aggregator_detections_total",
			Help: "Detection events received from the provider.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_aggregator_detections_rejected_total",
			Help: "Detection events dropped by the admission gate.",
		}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_writer_records_total",
			Help: "Attendance record writes by result.",
		}, []string{"result"}),
		pipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_pipeline_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		pipelineSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_pipeline_duration_seconds",
			Help:    "End to end pipeline duration.",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200},
		}),
	}

	s.register(reg, s.jobsSubmitted, "attendance_poller_jobs_submitted_total")
	s.register(reg, s.statusChecks, "attendance_poller_status_checks_total")
	s.register(reg, s.jobsFinished, "attendance_poller_jobs_finished_total")
	s.register(reg, s.jobWait, "attendance_poller_wait_seconds")
	s.register(reg, s.pagesFetched, "attendance_aggregator_pages_total")
	s.register(reg, s.pageFailures, "attendance_aggregator_page_failures_total")
	s.register(reg, s.detections, "attendance_aggregator_detections_total")
	s.register(reg, s.rejected, "attendance_aggregator_detections_rejected_total")
	s.register(reg, s.recordsWritten, "attendance_writer_records_total")
	s.register(reg, s.pipelines, "attendance_pipeline_runs_total")
	s.register(reg, s.pipelineSeconds, "attendance_pipeline_duration_seconds")

	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("failed to register metric", "metric", name, "error", err)
	}
}

func (s *PrometheusSink) JobSubmitted() {
	s.jobsSubmitted.Inc()
}

func (s *PrometheusSink) StatusChecked() {
	s.statusChecks.Inc()
}

func (s *PrometheusSink) JobFinished(status string, wait time.Duration) {
	s.jobsFinished.WithLabelValues(status).Inc()
	s.jobWait.Observe(wait.Seconds())
}

func (s *PrometheusSink) PageFetched(detections int) {
	s.pagesFetched.Inc()
	s.detections.Add(float64(detections))
}

func (s *PrometheusSink) PageFailed() {
	s.pageFailures.Inc()
}

func (s *PrometheusSink) DetectionsRejected(count int) {
	s.rejected.Add(float64(count))
}

func (s *PrometheusSink) RecordsWritten(written, failed int) {
	s.recordsWritten.WithLabelValues("written").Add(float64(written))
	s.recordsWritten.WithLabelValues("failed").Add(float64(failed))
}

func (s *PrometheusSink) PipelineFinished(outcome string, duration time.Duration) {
	s.pipelines.WithLabelValues(outcome).Inc()
	s.pipelineSeconds.Observe(duration.Seconds())
}
