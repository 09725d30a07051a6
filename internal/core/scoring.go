package core

import (
	"math"

	"attendance-backend/internal/core/types"
)

type ScoringConfig struct {
	// MaxSessionSec is the nominal session length that earns full presence.
	MaxSessionSec float64
	MinBBoxArea   float64
	MaxBBoxArea   float64
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		MaxSessionSec: 3000,
		MinBBoxArea:   0.005,
		MaxBBoxArea:   0.03,
	}
}

const (
	yawRange   = 180.0
	pitchRange = 90.0
	rollRange  = 180.0

	sharpnessScale = 5.0

	speakingBaseRate        = 0.15
	speakingMovementRate    = 0.10
	speakingOrientationRate = 0.10
	speakingCapRate         = 0.50
	speakingMovementNorm    = 450.0
	speakingMaxYaw          = 20.0
	speakingMaxPitch        = 30.0
)

// Scorer derives attendance, engagement and an estimated speaking time from
// reconciled member statistics. It holds no state beyond its configuration.
type Scorer struct {
	cfg ScoringConfig
}

func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Score(m types.MemberStats) types.Scores {
	return types.Scores{
		AttendanceScore:       s.AttendanceScore(m),
		EngagementScore:       s.EngagementScore(m),
		SpeakingTimeSec:       SpeakingTime(m),
		SpeakingTimeEstimated: true,
	}
}

func (s *Scorer) AttendanceScore(m types.MemberStats) float64 {
	presence := 0.0
	if s.cfg.MaxSessionSec > 0 {
		presence = clamp(m.PresenceDurationSec / s.cfg.MaxSessionSec * 100)
	}

	score := 0.50*presence + 0.25*clamp(m.AvgConfidence) + 0.25*clamp(m.AvgSimilarity)
	return round(clamp(score), 1)
}

func (s *Scorer) EngagementScore(m types.MemberStats) float64 {
	score := 0.40*orientationScore(m) + 0.30*visibilityScore(m) + 0.30*s.proximityScore(m)
	return round(clamp(score), 1)
}

func orientationScore(m types.MemberStats) float64 {
	yaw := math.Max(0, 100-math.Abs(m.AvgYaw)/yawRange*100)
	pitch := math.Max(0, 100-math.Abs(m.AvgPitch)/pitchRange*100)
	roll := math.Max(0, 100-math.Abs(m.AvgRoll)/rollRange*100)
	return (yaw + pitch + roll) / 3
}

func visibilityScore(m types.MemberStats) float64 {
	brightness := clamp(m.AvgBrightness)
	sharpness := clamp(m.AvgSharpness * sharpnessScale)
	return (brightness + sharpness) / 2
}

func (s *Scorer) proximityScore(m types.MemberStats) float64 {
	span := s.cfg.MaxBBoxArea - s.cfg.MinBBoxArea
	if span <= 0 {
		return 0
	}
	return clamp((m.AvgBBoxArea - s.cfg.MinBBoxArea) / span * 100)
}

// SpeakingTime is a head-movement heuristic. It is not backed by any audio
// signal and must be presented as an estimate.
func SpeakingTime(m types.MemberStats) int {
	duration := math.Trunc(math.Max(0, m.PresenceDurationSec))
	if duration == 0 {
		return 0
	}

	base := duration * speakingBaseRate

	movement := math.Abs(m.AvgYaw) + math.Abs(m.AvgPitch) + math.Abs(m.AvgRoll)
	movementBonus := duration * speakingMovementRate * movement / speakingMovementNorm

	orientationBonus := 0.0
	if math.Abs(m.AvgYaw) < speakingMaxYaw && math.Abs(m.AvgPitch) < speakingMaxPitch {
		orientationBonus = duration * speakingOrientationRate
	}

	total := math.Min(base+movementBonus+orientationBonus, duration*speakingCapRate)
	return int(total)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
