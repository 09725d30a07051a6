package query_test

import (
	"context"
	"testing"

	"attendance-backend/internal/core/status"
	"attendance-backend/internal/database"
	"attendance-backend/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	older  = "session_record_001"
	latest = "session_record_002"
)

func createTable(t *testing.T) *database.RecordTable {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())
	return database.NewRecordTable(db)
}

func put(t *testing.T, table *database.RecordTable, session string, student int64, rawStatus string, attendance, engagement float64) {
	require.NoError(t, table.PutItem(context.Background(), &database.AttendanceRecord{
		SessionId:       session,
		StudentId:       student,
		StudentName:     "Student",
		Status:          database.StatusField(rawStatus),
		AttendanceScore: attendance,
		EngagementScore: engagement,
		SessionDate:     "2025-11-0" + session[len(session)-1:],
		ClassName:       "Computer Science 101",
	}))
}

func seeded(t *testing.T) *query.Service {
	table := createTable(t)
	put(t, table, older, 1, `true`, 90, 60)
	put(t, table, older, 2, `true`, 70, 50)
	put(t, table, latest, 1, `true`, 80, 70)
	put(t, table, latest, 2, `false`, 0, 0)
	put(t, table, latest, 3, `"PRESENT"`, 60, 90)
	put(t, table, latest, 4, `"maybe"`, 10, 20)
	return query.NewService(table)
}

func TestSessionSummaryDefaultsToLatest(t *testing.T) {
	svc := seeded(t)

	summary, err := svc.SessionSummary(context.Background(), query.SessionSummary{})
	require.NoError(t, err)
	assert.Equal(t, query.Summary{
		SessionId:          latest,
		SessionDate:        "2025-11-02",
		ClassName:          "Computer Science 101",
		TotalStudents:      4,
		Present:            2,
		Absent:             1,
		Unknown:            1,
		AttendanceRate:     50,
		AvgAttendanceScore: 37.5,
		AvgEngagementScore: 45,
	}, summary)

	summary, err = svc.SessionSummary(context.Background(), query.SessionSummary{SessionId: older})
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.AttendanceRate)
	assert.Equal(t, 55.0, summary.AvgEngagementScore)
}

func TestSessionSummaryNotFound(t *testing.T) {
	svc := query.NewService(createTable(t))

	_, err := svc.SessionSummary(context.Background(), query.SessionSummary{})
	assert.ErrorIs(t, err, query.ErrNotFound)

	_, err = seeded(t).SessionSummary(context.Background(), query.SessionSummary{SessionId: "session_missing"})
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestStudentLookup(t *testing.T) {
	svc := seeded(t)

	report, err := svc.StudentLookup(context.Background(), query.StudentLookup{StudentId: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalSessions)
	assert.Equal(t, []string{latest, older}, report.Sessions)
	require.Len(t, report.Records, 2)
	assert.Equal(t, latest, report.Records[0].SessionId)
	assert.Equal(t, "true", report.Records[0].Status)

	report, err = svc.StudentLookup(context.Background(), query.StudentLookup{StudentId: 4, SessionId: latest})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "unknown", report.Records[0].Status)

	_, err = svc.StudentLookup(context.Background(), query.StudentLookup{StudentId: 99})
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestEngagementRanking(t *testing.T) {
	svc := seeded(t)

	rankings, err := svc.EngagementRanking(context.Background(), query.EngagementRanking{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, latest, rankings.SessionId)
	require.Len(t, rankings.TopStudents, 2)
	assert.Equal(t, int64(3), rankings.TopStudents[0].StudentId)
	assert.Equal(t, 1, rankings.TopStudents[0].Rank)
	assert.Equal(t, int64(1), rankings.TopStudents[1].StudentId)

	rankings, err = svc.EngagementRanking(context.Background(), query.EngagementRanking{SessionId: older})
	require.NoError(t, err)
	assert.Len(t, rankings.TopStudents, 2)
}

func TestAbsenteesExcludeUnknown(t *testing.T) {
	svc := seeded(t)

	report, err := svc.Absentees(context.Background(), query.Absentees{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalAbsent)
	require.Len(t, report.AbsentStudents, 1)
	assert.Equal(t, int64(2), report.AbsentStudents[0].StudentId)

	report, err = svc.Absentees(context.Background(), query.Absentees{SessionId: older})
	require.NoError(t, err)
	assert.Zero(t, report.TotalAbsent)
	assert.Empty(t, report.AbsentStudents)
}

func TestListSessions(t *testing.T) {
	svc := seeded(t)

	list, err := svc.ListSessions(context.Background(), query.ListSessions{})
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalSessions)
	require.Len(t, list.RecentSessions, 2)
	assert.Equal(t, latest, list.RecentSessions[0].SessionId)
	assert.Equal(t, older, list.RecentSessions[1].SessionId)
}

func TestListSessionsCapsRecent(t *testing.T) {
	table := createTable(t)
	for i := 0; i < 12; i++ {
		put(t, table, "session_record_"+string(rune('a'+i)), 1, `true`, 50, 50)
	}

	list, err := query.NewService(table).ListSessions(context.Background(), query.ListSessions{})
	require.NoError(t, err)
	assert.Equal(t, 12, list.TotalSessions)
	require.Len(t, list.RecentSessions, query.RecentSessionLimit)
	assert.Equal(t, "session_record_l", list.RecentSessions[0].SessionId)
}

func TestCompareSessions(t *testing.T) {
	svc := seeded(t)

	cmp, err := svc.CompareSessions(context.Background(), query.CompareSessions{First: latest, Second: older})
	require.NoError(t, err)
	assert.Equal(t, -50.0, cmp.Comparison.AttendanceDiff)
	assert.Equal(t, -10.0, cmp.Comparison.EngagementDiff)
	assert.Equal(t, 2, cmp.Comparison.StudentCountDiff)

	_, err = svc.CompareSessions(context.Background(), query.CompareSessions{First: latest, Second: "session_missing"})
	assert.ErrorIs(t, err, query.ErrNotFound)

	_, err = svc.CompareSessions(context.Background(), query.CompareSessions{First: latest})
	assert.ErrorIs(t, err, query.ErrInvalidArguments)
}

func TestDecodeAndExecute(t *testing.T) {
	svc := seeded(t)

	op, err := query.Decode("get_engagement_rankings", []byte(`{"limit": 1}`))
	require.NoError(t, err)
	assert.Equal(t, query.EngagementRanking{Limit: 1}, op)

	out, err := svc.Execute(context.Background(), op)
	require.NoError(t, err)
	rankings, ok := out.(query.Rankings)
	require.True(t, ok)
	assert.Len(t, rankings.TopStudents, 1)

	op, err = query.Decode("list_all_sessions", nil)
	require.NoError(t, err)
	assert.Equal(t, query.ListSessions{}, op)

	op, err = query.Decode("get_student_data", []byte(`{"student_id": 2, "session_id": "session_record_002"}`))
	require.NoError(t, err)
	assert.Equal(t, query.StudentLookup{StudentId: 2, SessionId: latest}, op)

	_, err = query.Decode("get_student_data", []byte(`{}`))
	assert.ErrorIs(t, err, query.ErrInvalidArguments)

	_, err = query.Decode("get_absent_students", []byte(`{"session_id": 7}`))
	assert.ErrorIs(t, err, query.ErrInvalidArguments)

	_, err = query.Decode("drop_table", []byte(`{}`))
	assert.ErrorIs(t, err, query.ErrUnknownOperation)
}

func TestToolsDecode(t *testing.T) {
	tools := query.Tools()
	assert.Len(t, tools, 7)
	for _, tool := range tools {
		args := []byte(`{}`)
		if tool.Name == "get_student_data" {
			args = []byte(`{"student_id": 1}`)
		}
		op, err := query.Decode(tool.Name, args)
		require.NoError(t, err, tool.Name)
		assert.Equal(t, tool.Name, op.Name())
		assert.Equal(t, "object", tool.Parameters["type"])
	}
}

func TestAuditStatuses(t *testing.T) {
	table := createTable(t)
	put(t, table, older, 1, `true`, 0, 0)
	put(t, table, older, 2, `false`, 0, 0)
	put(t, table, older, 3, `"PRESENT"`, 0, 0)
	put(t, table, older, 4, `"2"`, 0, 0)
	put(t, table, older, 5, `0`, 0, 0)
	put(t, table, older, 6, `null`, 0, 0)

	audit, err := query.NewService(table).AuditStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, audit.Total)
	assert.Equal(t, 2, audit.Booleans)
	assert.Equal(t, 2, audit.Strings)
	assert.Equal(t, 1, audit.Numbers)
	assert.Equal(t, 1, audit.Nulls)
	assert.Zero(t, audit.Other)
	assert.Equal(t, status.Tally{Present: 2, Absent: 2, Unknown: 2}, audit.Normalized)
	assert.Equal(t, []string{older + "#3", older + "#4", older + "#5"}, audit.NonCanonical)
}
