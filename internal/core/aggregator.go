package core

import (
	"context"
	"fmt"
	"log/slog"

	"attendance-backend/internal/core/types"
	"attendance-backend/internal/metrics"
)

const DefaultMatchThreshold = 80.0

// GateField selects which detection score the admission threshold applies to.
type GateField string

const (
	GateSimilarity GateField = "similarity"
	GateConfidence GateField = "confidence"
)

type AggregatorConfig struct {
	Threshold float64
	Gate      GateField
	// MaxPages bounds pagination against a provider that never stops
	// returning tokens. Zero means unbounded.
	MaxPages int
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{Threshold: DefaultMatchThreshold, Gate: GateSimilarity}
}

type AggregateStats struct {
	Pages      int   `json:"pages"`
	Detections int   `json:"detections"`
	Admitted   int   `json:"admitted"`
	Unmatched  int   `json:"unmatched"`
	BelowGate  int   `json:"below_threshold"`
	Truncated  bool  `json:"truncated"`
	PageErr    error `json:"-"`
}

type Aggregator struct {
	provider FaceSearchProvider
	cfg      AggregatorConfig
	metrics  metrics.Sink
}

func NewAggregator(provider FaceSearchProvider, cfg AggregatorConfig, sink metrics.Sink) *Aggregator {
	if cfg.Gate == "" {
		cfg.Gate = GateSimilarity
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Aggregator{provider: provider, cfg: cfg, metrics: sink}
}

// Aggregate pages through the results of a finished job and groups admitted
// detections by identity. A failed page ends pagination and the summaries
// collected so far are returned; the failure is reported in the stats
// rather than as an error.
func (a *Aggregator) Aggregate(ctx context.Context, jobId string) (map[int64]*types.IdentitySummary, AggregateStats) {
	summaries := make(map[int64]*types.IdentitySummary)
	var stats AggregateStats

	token := ""
	for {
		page, err := a.provider.GetPage(ctx, jobId, token)
		if err != nil {
			stats.Truncated = true
			stats.PageErr = fmt.Errorf("%w: job %s page %d: %w", ErrPageFetch, jobId, stats.Pages+1, err)
			a.metrics.PageFailed()
			slog.Error("error fetching face search results page, using partial results", "job_id", jobId, "page", stats.Pages+1, "error", err)
			break
		}

		stats.Pages++
		stats.Detections += len(page.Detections)
		a.metrics.PageFetched(len(page.Detections))

		rejected := a.admit(page.Detections, summaries, &stats)
		if rejected > 0 {
			a.metrics.DetectionsRejected(rejected)
		}

		if page.NextToken == "" {
			break
		}
		if a.cfg.MaxPages > 0 && stats.Pages >= a.cfg.MaxPages {
			stats.Truncated = true
			slog.Warn("face search results exceeded page limit", "job_id", jobId, "pages", stats.Pages)
			break
		}
		token = page.NextToken
	}

	slog.Info("aggregated face search results", "job_id", jobId, "pages", stats.Pages, "detections", stats.Detections,
		"admitted", stats.Admitted, "identities", len(summaries), "truncated", stats.Truncated)

	return summaries, stats
}

func (a *Aggregator) admit(events []types.DetectionEvent, summaries map[int64]*types.IdentitySummary, stats *AggregateStats) int {
	rejected := 0
	for _, event := range events {
		if event.IdentityId == nil {
			stats.Unmatched++
			rejected++
			continue
		}
		if a.gateValue(event) < a.cfg.Threshold {
			stats.BelowGate++
			rejected++
			continue
		}

		id := *event.IdentityId
		summary, ok := summaries[id]
		if !ok {
			summary = types.NewIdentitySummary(id)
			summaries[id] = summary
		}
		summary.Add(event)
		stats.Admitted++
	}
	return rejected
}

func (a *Aggregator) gateValue(event types.DetectionEvent) float64 {
	if a.cfg.Gate == GateConfidence {
		return event.Confidence
	}
	return event.Similarity
}
