package core_test

import (
	"testing"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryOf(events ...types.DetectionEvent) *types.IdentitySummary {
	s := types.NewIdentitySummary(*events[0].IdentityId)
	for _, e := range events {
		s.Add(e)
	}
	return s
}

func TestReconcilePresentMember(t *testing.T) {
	a := detection(7, 5000, 91.23)
	a.Confidence = 99.91
	a.Pose = types.Pose{Yaw: 10.123, Pitch: -4.5, Roll: 2.004}
	a.Quality = types.Quality{Brightness: 60.06, Sharpness: 11.111}
	a.BoundingBox = types.BoundingBox{Width: 0.1, Height: 0.1}

	b := detection(7, 1000, 88.77)
	b.Confidence = 99.5
	b.Pose = types.Pose{Yaw: 0, Pitch: -5.5, Roll: 0}
	b.Quality = types.Quality{Brightness: 70, Sharpness: 13.333}
	b.BoundingBox = types.BoundingBox{Width: 0.2, Height: 0.1}

	c := detection(7, 1501234, 90)
	c.Confidence = 99
	c.Pose = types.Pose{Yaw: 5, Pitch: -6, Roll: 1}
	c.Quality = types.Quality{Brightness: 65, Sharpness: 12}
	c.BoundingBox = types.BoundingBox{Width: 0.15, Height: 0.1}

	out := core.Reconcile(map[int64]*types.IdentitySummary{7: summaryOf(a, b, c)}, []int64{7})
	require.Len(t, out, 1)

	m := out[7]
	assert.True(t, m.Present)
	assert.Equal(t, int64(7), m.IdentityId)
	assert.Equal(t, 3, m.Detections)
	assert.Equal(t, int64(1000), m.TimestampStart)
	assert.Equal(t, int64(1501234), m.TimestampEnd)
	assert.Equal(t, 1500.23, m.PresenceDurationSec)
	assert.Equal(t, 99.5, m.AvgConfidence)
	assert.Equal(t, 90.0, m.AvgSimilarity)
	assert.Equal(t, 5.04, m.AvgYaw)
	assert.Equal(t, -5.33, m.AvgPitch)
	assert.Equal(t, 1.0, m.AvgRoll)
	assert.Equal(t, 65.0, m.AvgBrightness)
	assert.Equal(t, 12.15, m.AvgSharpness)
	assert.Equal(t, 0.015, m.AvgBBoxArea)
}

func TestReconcileSynthesizesAbsentMembers(t *testing.T) {
	summaries := map[int64]*types.IdentitySummary{
		1: summaryOf(detection(1, 1000, 95), detection(1, 3000, 95)),
		// Detected but not on the roster.
		99: summaryOf(detection(99, 1000, 95)),
	}

	out := core.Reconcile(summaries, []int64{1, 2, 3})

	require.Len(t, out, 3)
	assert.Equal(t, []int64{1, 2, 3}, core.SortedIds(out))
	assert.True(t, out[1].Present)
	assert.Equal(t, 2.0, out[1].PresenceDurationSec)
	assert.Equal(t, types.MemberStats{IdentityId: 2}, out[2])
	assert.Equal(t, types.MemberStats{IdentityId: 3}, out[3])
	assert.NotContains(t, out, int64(99))
}

func TestReconcileZeroDetections(t *testing.T) {
	roster := []int64{10, 11, 12, 13}
	out := core.Reconcile(map[int64]*types.IdentitySummary{}, roster)

	require.Len(t, out, len(roster))
	for _, id := range roster {
		assert.False(t, out[id].Present)
		assert.Zero(t, out[id].PresenceDurationSec)
	}
}

func TestReconcileEmptyRoster(t *testing.T) {
	out := core.Reconcile(map[int64]*types.IdentitySummary{1: summaryOf(detection(1, 1000, 95))}, nil)
	assert.Empty(t, out)
}

func TestReconcileDuplicateExpectedIds(t *testing.T) {
	out := core.Reconcile(nil, []int64{4, 4, 5})
	assert.Len(t, out, 2)
}

func TestReconcileSingleDetection(t *testing.T) {
	out := core.Reconcile(map[int64]*types.IdentitySummary{1: summaryOf(detection(1, 42000, 95))}, []int64{1})

	assert.True(t, out[1].Present)
	assert.Equal(t, 0.0, out[1].PresenceDurationSec)
	assert.Equal(t, int64(42000), out[1].TimestampStart)
	assert.Equal(t, int64(42000), out[1].TimestampEnd)
}
