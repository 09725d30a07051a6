package core_test

import (
	"math/rand"
	"testing"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"

	"github.com/smartystreets/goconvey/convey"
)

func TestAttendanceScore(t *testing.T) {
	convey.Convey("Given the default scorer", t, func() {
		scorer := core.NewScorer(core.DefaultScoringConfig())

		convey.Convey("Half a session with good matches scores 68.8", func() {
			m := types.MemberStats{PresenceDurationSec: 1500, AvgConfidence: 90, AvgSimilarity: 85}
			convey.So(scorer.AttendanceScore(m), convey.ShouldEqual, 68.8)
		})

		convey.Convey("Presence is capped at a full session", func() {
			m := types.MemberStats{PresenceDurationSec: 9000, AvgConfidence: 100, AvgSimilarity: 100}
			convey.So(scorer.AttendanceScore(m), convey.ShouldEqual, 100.0)
		})

		convey.Convey("An absent member scores zero", func() {
			convey.So(scorer.AttendanceScore(types.MemberStats{}), convey.ShouldEqual, 0.0)
		})
	})
}

func TestEngagementScore(t *testing.T) {
	convey.Convey("Given the default scorer", t, func() {
		scorer := core.NewScorer(core.DefaultScoringConfig())

		convey.Convey("A mostly frontal, well lit, mid distance face", func() {
			m := types.MemberStats{
				AvgYaw: 10, AvgPitch: 5, AvgRoll: 5,
				AvgBrightness: 70, AvgSharpness: 12,
				AvgBBoxArea: 0.02,
			}
			// orientation 95.37, visibility 65, proximity 60
			convey.So(scorer.EngagementScore(m), convey.ShouldEqual, 75.6)
		})

		convey.Convey("Angles are taken as absolute values", func() {
			left := types.MemberStats{AvgYaw: -30, AvgPitch: -10, AvgRoll: -4, AvgBrightness: 50, AvgSharpness: 10, AvgBBoxArea: 0.01}
			right := types.MemberStats{AvgYaw: 30, AvgPitch: 10, AvgRoll: 4, AvgBrightness: 50, AvgSharpness: 10, AvgBBoxArea: 0.01}
			convey.So(scorer.EngagementScore(left), convey.ShouldEqual, scorer.EngagementScore(right))
		})

		convey.Convey("Proximity saturates above the maximum box area", func() {
			near := types.MemberStats{AvgBBoxArea: 0.5}
			far := types.MemberStats{AvgBBoxArea: 0.001}
			// orientation is 100 for zero angles, visibility 0
			convey.So(scorer.EngagementScore(near), convey.ShouldEqual, 70.0)
			convey.So(scorer.EngagementScore(far), convey.ShouldEqual, 40.0)
		})
	})
}

func TestSpeakingTime(t *testing.T) {
	convey.Convey("Speaking time is a head pose estimate", t, func() {
		convey.Convey("Frontal pose earns the orientation bonus", func() {
			m := types.MemberStats{PresenceDurationSec: 100, AvgYaw: 10, AvgPitch: 5, AvgRoll: 5}
			// 15 base + 0.44 movement + 10 orientation
			convey.So(core.SpeakingTime(m), convey.ShouldEqual, 25)
		})

		convey.Convey("Turned away loses the orientation bonus", func() {
			m := types.MemberStats{PresenceDurationSec: 100, AvgYaw: 45, AvgPitch: 0, AvgRoll: 0}
			// 15 base + 1 movement
			convey.So(core.SpeakingTime(m), convey.ShouldEqual, 16)
		})

		convey.Convey("The estimate never exceeds half the duration", func() {
			m := types.MemberStats{PresenceDurationSec: 1000, AvgYaw: 10, AvgPitch: 29, AvgRoll: 3000}
			convey.So(core.SpeakingTime(m), convey.ShouldEqual, 500)
		})

		convey.Convey("Fractional seconds of presence are dropped", func() {
			m := types.MemberStats{PresenceDurationSec: 0.9, AvgYaw: 0}
			convey.So(core.SpeakingTime(m), convey.ShouldEqual, 0)
		})

		convey.Convey("Scores always flag speaking time as estimated", func() {
			scores := core.NewScorer(core.DefaultScoringConfig()).Score(types.MemberStats{})
			convey.So(scores.SpeakingTimeEstimated, convey.ShouldBeTrue)
		})
	})
}

func TestScoresStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	scorer := core.NewScorer(core.DefaultScoringConfig())

	convey.Convey("For randomized pose, quality and duration inputs", t, func() {
		for i := 0; i < 5000; i++ {
			m := types.MemberStats{
				PresenceDurationSec: rng.Float64() * 20000,
				AvgConfidence:       rng.Float64()*300 - 100,
				AvgSimilarity:       rng.Float64()*300 - 100,
				AvgYaw:              rng.Float64()*720 - 360,
				AvgPitch:            rng.Float64()*360 - 180,
				AvgRoll:             rng.Float64()*720 - 360,
				AvgBrightness:       rng.Float64()*400 - 100,
				AvgSharpness:        rng.Float64()*200 - 50,
				AvgBBoxArea:         rng.Float64()*2 - 0.5,
			}
			scores := scorer.Score(m)

			convey.So(scores.AttendanceScore, convey.ShouldBeBetweenOrEqual, 0.0, 100.0)
			convey.So(scores.EngagementScore, convey.ShouldBeBetweenOrEqual, 0.0, 100.0)
			convey.So(scores.SpeakingTimeSec, convey.ShouldBeGreaterThanOrEqualTo, 0)
			convey.So(float64(scores.SpeakingTimeSec), convey.ShouldBeLessThanOrEqualTo, m.PresenceDurationSec*0.5)
		}
	})
}
