package core_test

import (
	"context"
	"errors"
	"testing"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatePaginates(t *testing.T) {
	provider := &scriptedProvider{pages: []core.DetectionPage{
		{Detections: []types.DetectionEvent{detection(1, 1000, 95), detection(2, 1500, 90)}},
		{Detections: []types.DetectionEvent{detection(1, 4000, 97)}},
		{Detections: []types.DetectionEvent{detection(2, 9000, 85), detection(1, 2000, 99)}},
	}}

	agg := core.NewAggregator(provider, core.DefaultAggregatorConfig(), nil)
	summaries, stats := agg.Aggregate(context.Background(), "job-1")

	assert.Equal(t, []string{"", "page-1", "page-2"}, provider.pageTokens)
	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 5, stats.Detections)
	assert.Equal(t, 5, stats.Admitted)
	assert.False(t, stats.Truncated)
	assert.NoError(t, stats.PageErr)

	require.Len(t, summaries, 2)
	assert.Equal(t, []int64{1000, 4000, 2000}, summaries[1].Timestamps)
	assert.Equal(t, []float64{95, 97, 99}, summaries[1].Similarities)
	assert.Equal(t, []int64{1500, 9000}, summaries[2].Timestamps)
	assert.InDelta(t, 0.02, summaries[2].BBoxAreas[0], 1e-9)
	assert.Equal(t, []float64{10, 10}, summaries[2].Yaws)
	assert.Equal(t, []float64{70, 70}, summaries[2].Brightness)
}

func TestAggregateAdmissionGate(t *testing.T) {
	unmatched := detection(0, 500, 99)
	unmatched.IdentityId = nil

	provider := &scriptedProvider{pages: []core.DetectionPage{
		{Detections: []types.DetectionEvent{
			detection(1, 1000, 79.99),
			detection(1, 2000, 80),
			detection(2, 3000, 12),
			unmatched,
		}},
	}}

	agg := core.NewAggregator(provider, core.DefaultAggregatorConfig(), nil)
	summaries, stats := agg.Aggregate(context.Background(), "job-1")

	require.Len(t, summaries, 1)
	assert.Equal(t, []int64{2000}, summaries[1].Timestamps)
	assert.NotContains(t, summaries, int64(2))
	assert.Equal(t, 1, stats.Admitted)
	assert.Equal(t, 2, stats.BelowGate)
	assert.Equal(t, 1, stats.Unmatched)
}

func TestAggregateGateOnConfidence(t *testing.T) {
	low := detection(1, 1000, 99)
	low.Confidence = 50
	high := detection(1, 2000, 10)
	high.Confidence = 90

	provider := &scriptedProvider{pages: []core.DetectionPage{{Detections: []types.DetectionEvent{low, high}}}}

	agg := core.NewAggregator(provider, core.AggregatorConfig{Threshold: 80, Gate: core.GateConfidence}, nil)
	summaries, _ := agg.Aggregate(context.Background(), "job-1")

	require.Len(t, summaries, 1)
	assert.Equal(t, []int64{2000}, summaries[1].Timestamps)
}

func TestAggregateKeepsPartialResultsOnPageFailure(t *testing.T) {
	provider := &scriptedProvider{
		pages: []core.DetectionPage{
			{Detections: []types.DetectionEvent{detection(1, 1000, 95)}},
			{Detections: []types.DetectionEvent{detection(2, 2000, 95)}},
			{Detections: []types.DetectionEvent{detection(3, 3000, 95)}},
		},
		pageErr: map[int]error{1: errors.New("throttled")},
	}

	agg := core.NewAggregator(provider, core.DefaultAggregatorConfig(), nil)
	summaries, stats := agg.Aggregate(context.Background(), "job-1")

	assert.True(t, stats.Truncated)
	assert.ErrorIs(t, stats.PageErr, core.ErrPageFetch)
	assert.Equal(t, 1, stats.Pages)
	require.Len(t, summaries, 1)
	assert.Contains(t, summaries, int64(1))
}

func TestAggregateFirstPageFailure(t *testing.T) {
	provider := &scriptedProvider{pageErr: map[int]error{0: errors.New("job expired")}}

	agg := core.NewAggregator(provider, core.DefaultAggregatorConfig(), nil)
	summaries, stats := agg.Aggregate(context.Background(), "job-1")

	assert.Empty(t, summaries)
	assert.True(t, stats.Truncated)
	assert.Equal(t, 0, stats.Pages)
}

func TestAggregatePageLimit(t *testing.T) {
	provider := &scriptedProvider{pages: []core.DetectionPage{
		{Detections: []types.DetectionEvent{detection(1, 1000, 95)}},
		{Detections: []types.DetectionEvent{detection(1, 2000, 95)}},
		{Detections: []types.DetectionEvent{detection(1, 3000, 95)}},
	}}

	agg := core.NewAggregator(provider, core.AggregatorConfig{Threshold: 80, MaxPages: 2}, nil)
	summaries, stats := agg.Aggregate(context.Background(), "job-1")

	assert.True(t, stats.Truncated)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, []int64{1000, 2000}, summaries[1].Timestamps)
}
