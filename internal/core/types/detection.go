package types

// Pose is the head orientation of a detected face, in degrees.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

type Quality struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
}

// BoundingBox dimensions are fractions of the frame.
type BoundingBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// DetectionEvent is a single frame-level face match reported by the face
// search provider. IdentityId is nil when the face matched nobody in the
// collection (or the match carried an unusable external id).
type DetectionEvent struct {
	TimestampMs int64  `json:"timestamp_ms"`
	IdentityId  *int64 `json:"identity_id,omitempty"`
	// Similarity is the match confidence against the indexed roster face.
	Similarity float64 `json:"similarity"`
	// Confidence is the provider's confidence that the region is a face.
	Confidence  float64     `json:"confidence"`
	Pose        Pose        `json:"pose"`
	Quality     Quality     `json:"quality"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// IdentitySummary accumulates every admitted detection for one identity.
type IdentitySummary struct {
	IdentityId   int64
	Timestamps   []int64
	Confidences  []float64
	Similarities []float64
	Yaws         []float64
	Pitches      []float64
	Rolls        []float64
	Brightness   []float64
	Sharpness    []float64
	BBoxAreas    []float64
}

func NewIdentitySummary(id int64) *IdentitySummary {
	return &IdentitySummary{IdentityId: id}
}

func (s *IdentitySummary) Add(event DetectionEvent) {
	s.Timestamps = append(s.Timestamps, event.TimestampMs)
	s.Confidences = append(s.Confidences, event.Confidence)
	s.Similarities = append(s.Similarities, event.Similarity)
	s.Yaws = append(s.Yaws, event.Pose.Yaw)
	s.Pitches = append(s.Pitches, event.Pose.Pitch)
	s.Rolls = append(s.Rolls, event.Pose.Roll)
	s.Brightness = append(s.Brightness, event.Quality.Brightness)
	s.Sharpness = append(s.Sharpness, event.Quality.Sharpness)
	s.BBoxAreas = append(s.BBoxAreas, event.BoundingBox.Area())
}

func (s *IdentitySummary) Len() int {
	return len(s.Timestamps)
}

// MemberStats is the reconciled view of one expected roster member before
// scoring. Absent members carry all zero values.
type MemberStats struct {
	IdentityId          int64   `json:"student_id"`
	Present             bool    `json:"present"`
	Detections          int     `json:"detections"`
	TimestampStart      int64   `json:"timestamp_start"`
	TimestampEnd        int64   `json:"timestamp_end"`
	PresenceDurationSec float64 `json:"presence_duration_sec"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgSimilarity       float64 `json:"avg_similarity"`
	AvgYaw              float64 `json:"avg_yaw"`
	AvgPitch            float64 `json:"avg_pitch"`
	AvgRoll             float64 `json:"avg_roll"`
	AvgBrightness       float64 `json:"avg_brightness"`
	AvgSharpness        float64 `json:"avg_sharpness"`
	AvgBBoxArea         float64 `json:"avg_bbox_area"`
}

// Scores are derived from MemberStats. SpeakingTimeSec is a head-pose
// heuristic, not measured speech, and SpeakingTimeEstimated is always set.
type Scores struct {
	AttendanceScore       float64 `json:"attendance_score"`
	EngagementScore       float64 `json:"engagement_score"`
	SpeakingTimeSec       int     `json:"speaking_time_sec"`
	SpeakingTimeEstimated bool    `json:"speaking_time_estimated"`
}
