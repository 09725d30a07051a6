package core

import (
	"math"
	"slices"

	"attendance-backend/internal/core/types"
)

// Reconcile produces exactly one MemberStats per expected id. Expected ids
// that were never detected get a zero record with Present unset; detected
// identities that are not on the roster are dropped.
func Reconcile(summaries map[int64]*types.IdentitySummary, expectedIds []int64) map[int64]types.MemberStats {
	out := make(map[int64]types.MemberStats, len(expectedIds))

	for _, id := range expectedIds {
		summary, ok := summaries[id]
		if !ok || summary.Len() == 0 {
			out[id] = types.MemberStats{IdentityId: id}
			continue
		}
		out[id] = summarize(summary)
	}

	return out
}

func summarize(s *types.IdentitySummary) types.MemberStats {
	start, end := slices.Min(s.Timestamps), slices.Max(s.Timestamps)

	return types.MemberStats{
		IdentityId:          s.IdentityId,
		Present:             true,
		Detections:          s.Len(),
		TimestampStart:      start,
		TimestampEnd:        end,
		PresenceDurationSec: round(float64(end-start)/1000, 2),
		AvgConfidence:       round(mean(s.Confidences), 1),
		AvgSimilarity:       round(mean(s.Similarities), 1),
		AvgYaw:              round(mean(s.Yaws), 2),
		AvgPitch:            round(mean(s.Pitches), 2),
		AvgRoll:             round(mean(s.Rolls), 2),
		AvgBrightness:       round(mean(s.Brightness), 1),
		AvgSharpness:        round(mean(s.Sharpness), 2),
		AvgBBoxArea:         round(mean(s.BBoxAreas), 5),
	}
}

// SortedIds returns the keys of a reconciled roster in ascending order.
func SortedIds(members map[int64]types.MemberStats) []int64 {
	ids := make([]int64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(value float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(value*p) / p
}
