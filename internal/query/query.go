package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"attendance-backend/internal/core/status"
	"attendance-backend/internal/database"
)

var (
	ErrNotFound         = errors.New("no matching attendance records")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidArguments = errors.New("invalid operation arguments")
)

const (
	DefaultRankingLimit = 5
	RecentSessionLimit  = 10
)

// RecordScanner is satisfied by *database.RecordTable.
type RecordScanner interface {
	Scan(ctx context.Context, filter database.RecordFilter) ([]database.AttendanceRecord, error)
}

var _ RecordScanner = (*database.RecordTable)(nil)

// Service answers read-only questions about stored attendance records. All
// presence decisions go through status normalization so legacy encodings
// are counted consistently.
type Service struct {
	records RecordScanner
}

func NewService(records RecordScanner) *Service {
	return &Service{records: records}
}

type StudentRecord struct {
	RecordId              string  `json:"record_id"`
	StudentId             int64   `json:"student_id"`
	StudentName           string  `json:"student_name"`
	SessionId             string  `json:"session_id"`
	SessionDate           string  `json:"session_date"`
	ClassName             string  `json:"class_name"`
	Status                string  `json:"status"`
	PresenceDurationSec   float64 `json:"presence_duration_sec"`
	Detections            int     `json:"detections"`
	AttendanceScore       float64 `json:"attendance_score"`
	EngagementScore       float64 `json:"engagement_score"`
	SpeakingTimeSec       int     `json:"speaking_time_sec"`
	SpeakingTimeEstimated bool    `json:"speaking_time_estimated"`
}

type StudentReport struct {
	StudentId     int64           `json:"student_id"`
	StudentName   string          `json:"student_name"`
	TotalSessions int             `json:"total_sessions"`
	Sessions      []string        `json:"sessions"`
	Records       []StudentRecord `json:"records"`
}

type Summary struct {
	SessionId          string  `json:"session_id"`
	SessionDate        string  `json:"session_date"`
	ClassName          string  `json:"class_name"`
	TotalStudents      int     `json:"total_students"`
	Present            int     `json:"present"`
	Absent             int     `json:"absent"`
	Unknown            int     `json:"unknown"`
	AttendanceRate     float64 `json:"attendance_rate"`
	AvgAttendanceScore float64 `json:"avg_attendance_score"`
	AvgEngagementScore float64 `json:"avg_engagement_score"`
}

type RankedStudent struct {
	Rank            int     `json:"rank"`
	StudentId       int64   `json:"student_id"`
	StudentName     string  `json:"student_name"`
	EngagementScore float64 `json:"engagement_score"`
	AttendanceScore float64 `json:"attendance_score"`
}

type Rankings struct {
	SessionId   string          `json:"session_id"`
	SessionDate string          `json:"session_date"`
	TopStudents []RankedStudent `json:"top_students"`
}

type AbsentStudent struct {
	StudentId   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	SessionDate string `json:"session_date"`
}

type AbsenteeReport struct {
	SessionId      string          `json:"session_id"`
	AbsentStudents []AbsentStudent `json:"absent_students"`
	TotalAbsent    int             `json:"total_absent"`
}

type SessionInfo struct {
	SessionId   string `json:"session_id"`
	SessionDate string `json:"session_date"`
	ClassName   string `json:"class_name"`
}

type SessionList struct {
	TotalSessions  int           `json:"total_sessions"`
	RecentSessions []SessionInfo `json:"recent_sessions"`
}

type Matches struct {
	SessionId string          `json:"session_id"`
	Filter    string          `json:"filter,omitempty"`
	Total     int             `json:"total"`
	Records   []StudentRecord `json:"records"`
}

type SessionDiff struct {
	AttendanceDiff   float64 `json:"attendance_diff"`
	EngagementDiff   float64 `json:"engagement_diff"`
	StudentCountDiff int     `json:"student_count_diff"`
}

type SessionComparison struct {
	First      Summary     `json:"session_1"`
	Second     Summary     `json:"session_2"`
	Comparison SessionDiff `json:"comparison"`
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// sessionIds returns the distinct session ids, latest first. Session ids are
// derived from recording names, so reverse lexical order is recency order.
func sessionIds(records []database.AttendanceRecord) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range records {
		if _, ok := seen[r.SessionId]; ok {
			continue
		}
		seen[r.SessionId] = struct{}{}
		ids = append(ids, r.SessionId)
	}
	slices.SortFunc(ids, func(a, b string) int { return cmp.Compare(b, a) })
	return ids
}

func (s *Service) latestSession(ctx context.Context) (string, error) {
	all, err := s.records.Scan(ctx, database.RecordFilter{})
	if err != nil {
		return "", err
	}
	ids := sessionIds(all)
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	return ids[0], nil
}

// sessionRecords loads one session, defaulting to the latest when sessionId
// is empty.
func (s *Service) sessionRecords(ctx context.Context, sessionId string) (string, []database.AttendanceRecord, error) {
	if sessionId == "" {
		latest, err := s.latestSession(ctx)
		if err != nil {
			return "", nil, err
		}
		sessionId = latest
	}

	records, err := s.records.Scan(ctx, database.RecordFilter{SessionId: sessionId})
	if err != nil {
		return "", nil, fmt.Errorf("error loading session %s: %w", sessionId, err)
	}
	if len(records) == 0 {
		return sessionId, nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionId)
	}
	return sessionId, records, nil
}

func (s *Service) StudentLookup(ctx context.Context, op StudentLookup) (StudentReport, error) {
	records, err := s.records.Scan(ctx, database.RecordFilter{SessionId: op.SessionId, StudentId: &op.StudentId})
	if err != nil {
		return StudentReport{}, fmt.Errorf("error loading records for student %d: %w", op.StudentId, err)
	}
	if len(records) == 0 {
		return StudentReport{}, fmt.Errorf("%w: student %d", ErrNotFound, op.StudentId)
	}

	slices.SortFunc(records, func(a, b database.AttendanceRecord) int { return cmp.Compare(b.SessionId, a.SessionId) })

	report := StudentReport{
		StudentId:     op.StudentId,
		StudentName:   records[0].StudentName,
		TotalSessions: len(records),
		Sessions:      sessionIds(records),
		Records:       make([]StudentRecord, 0, len(records)),
	}
	for _, r := range records {
		report.Records = append(report.Records, studentRecord(r))
	}
	return report, nil
}

func studentRecord(r database.AttendanceRecord) StudentRecord {
	return StudentRecord{
		RecordId:              r.RecordId,
		StudentId:             r.StudentId,
		StudentName:           r.StudentName,
		SessionId:             r.SessionId,
		SessionDate:           r.SessionDate,
		ClassName:             r.ClassName,
		Status:                r.Presence().String(),
		PresenceDurationSec:   r.PresenceDurationSec,
		Detections:            r.Detections,
		AttendanceScore:       r.AttendanceScore,
		EngagementScore:       r.EngagementScore,
		SpeakingTimeSec:       r.SpeakingTimeSec,
		SpeakingTimeEstimated: r.SpeakingTimeEstimated,
	}
}

// FindStudents returns the records of one session that match a filter
// expression, ordered by student id. An empty filter matches every record.
func (s *Service) FindStudents(ctx context.Context, op FindStudents) (Matches, error) {
	filter := RecordFilter(allOf(nil))
	if op.Filter != "" {
		var err error
		if filter, err = ParseRecordFilter(op.Filter); err != nil {
			return Matches{}, err
		}
	}

	sessionId, records, err := s.sessionRecords(ctx, op.SessionId)
	if err != nil {
		return Matches{}, err
	}

	slices.SortFunc(records, func(a, b database.AttendanceRecord) int { return cmp.Compare(a.StudentId, b.StudentId) })

	matches := Matches{SessionId: sessionId, Filter: op.Filter, Records: []StudentRecord{}}
	for i := range records {
		if filter.Matches(&records[i]) {
			matches.Records = append(matches.Records, studentRecord(records[i]))
		}
	}
	matches.Total = len(matches.Records)
	return matches, nil
}

func summarize(sessionId string, records []database.AttendanceRecord) Summary {
	var tally status.Tally
	var attendance, engagement float64
	for _, r := range records {
		tally.Add(r.Presence())
		attendance += r.AttendanceScore
		engagement += r.EngagementScore
	}

	summary := Summary{
		SessionId:     sessionId,
		TotalStudents: len(records),
		Present:       tally.Present,
		Absent:        tally.Absent,
		Unknown:       tally.Unknown,
	}
	if len(records) > 0 {
		total := float64(len(records))
		summary.SessionDate = records[0].SessionDate
		summary.ClassName = records[0].ClassName
		summary.AttendanceRate = round(float64(tally.Present)/total*100, 1)
		summary.AvgAttendanceScore = round(attendance/total, 2)
		summary.AvgEngagementScore = round(engagement/total, 2)
	}
	return summary
}

func (s *Service) SessionSummary(ctx context.Context, op SessionSummary) (Summary, error) {
	sessionId, records, err := s.sessionRecords(ctx, op.SessionId)
	if err != nil {
		return Summary{}, err
	}
	return summarize(sessionId, records), nil
}

func (s *Service) EngagementRanking(ctx context.Context, op EngagementRanking) (Rankings, error) {
	sessionId, records, err := s.sessionRecords(ctx, op.SessionId)
	if err != nil {
		return Rankings{}, err
	}

	limit := op.Limit
	if limit <= 0 {
		limit = DefaultRankingLimit
	}

	slices.SortStableFunc(records, func(a, b database.AttendanceRecord) int {
		if c := cmp.Compare(b.EngagementScore, a.EngagementScore); c != 0 {
			return c
		}
		return cmp.Compare(a.StudentId, b.StudentId)
	})

	rankings := Rankings{SessionId: sessionId, SessionDate: records[0].SessionDate}
	for i, r := range records[:min(limit, len(records))] {
		rankings.TopStudents = append(rankings.TopStudents, RankedStudent{
			Rank:            i + 1,
			StudentId:       r.StudentId,
			StudentName:     r.StudentName,
			EngagementScore: r.EngagementScore,
			AttendanceScore: r.AttendanceScore,
		})
	}
	return rankings, nil
}

// Absentees lists only students whose status normalizes to absent; unknown
// statuses are not reported as absences.
func (s *Service) Absentees(ctx context.Context, op Absentees) (AbsenteeReport, error) {
	sessionId, records, err := s.sessionRecords(ctx, op.SessionId)
	if err != nil {
		return AbsenteeReport{}, err
	}

	report := AbsenteeReport{SessionId: sessionId, AbsentStudents: []AbsentStudent{}}
	for _, r := range records {
		if r.Presence() != status.False {
			continue
		}
		report.AbsentStudents = append(report.AbsentStudents, AbsentStudent{
			StudentId:   r.StudentId,
			StudentName: r.StudentName,
			SessionDate: r.SessionDate,
		})
	}
	slices.SortFunc(report.AbsentStudents, func(a, b AbsentStudent) int { return cmp.Compare(a.StudentId, b.StudentId) })
	report.TotalAbsent = len(report.AbsentStudents)
	return report, nil
}

func (s *Service) ListSessions(ctx context.Context, _ ListSessions) (SessionList, error) {
	all, err := s.records.Scan(ctx, database.RecordFilter{})
	if err != nil {
		return SessionList{}, fmt.Errorf("error listing sessions: %w", err)
	}

	first := make(map[string]database.AttendanceRecord)
	for _, r := range all {
		if _, ok := first[r.SessionId]; !ok {
			first[r.SessionId] = r
		}
	}

	ids := sessionIds(all)
	list := SessionList{TotalSessions: len(ids), RecentSessions: []SessionInfo{}}
	for _, id := range ids[:min(RecentSessionLimit, len(ids))] {
		r := first[id]
		list.RecentSessions = append(list.RecentSessions, SessionInfo{SessionId: id, SessionDate: r.SessionDate, ClassName: r.ClassName})
	}
	return list, nil
}

func (s *Service) CompareSessions(ctx context.Context, op CompareSessions) (SessionComparison, error) {
	if op.First == "" || op.Second == "" {
		return SessionComparison{}, fmt.Errorf("%w: two session ids are required", ErrInvalidArguments)
	}

	first, err := s.SessionSummary(ctx, SessionSummary{SessionId: op.First})
	if err != nil {
		return SessionComparison{}, fmt.Errorf("one or both sessions not found: %w", err)
	}
	second, err := s.SessionSummary(ctx, SessionSummary{SessionId: op.Second})
	if err != nil {
		return SessionComparison{}, fmt.Errorf("one or both sessions not found: %w", err)
	}

	return SessionComparison{
		First:  first,
		Second: second,
		Comparison: SessionDiff{
			AttendanceDiff:   round(first.AttendanceRate-second.AttendanceRate, 1),
			EngagementDiff:   round(first.AvgEngagementScore-second.AvgEngagementScore, 2),
			StudentCountDiff: first.TotalStudents - second.TotalStudents,
		},
	}, nil
}
