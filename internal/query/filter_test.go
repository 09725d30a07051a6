package query_test

import (
	"context"
	"testing"

	"attendance-backend/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func studentIds(m query.Matches) []int64 {
	ids := make([]int64, 0, len(m.Records))
	for _, r := range m.Records {
		ids = append(ids, r.StudentId)
	}
	return ids
}

func TestFindStudents(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	cases := map[string][]int64{
		``:                                             {1, 2, 3, 4},
		`status = "present"`:                           {1, 3},
		`status = "absent"`:                            {2},
		`status = "unknown"`:                           {4},
		`engagement_score > 50`:                        {1, 3},
		`status = "present" AND engagement_score > 80`: {3},
		`attendance_score < 20 OR student_id = 1`:      {1, 2, 4},
		`NOT status = "present"`:                       {2, 4},
		`NOT (student_id = 1 OR student_id = 2)`:       {3, 4},
		`student_name CONTAINS "stud"`:                 {1, 2, 3, 4},
	}
	for filter, expected := range cases {
		matches, err := svc.FindStudents(ctx, query.FindStudents{Filter: filter})
		require.NoError(t, err, filter)
		assert.Equal(t, latest, matches.SessionId, filter)
		assert.Equal(t, expected, studentIds(matches), filter)
		assert.Equal(t, len(expected), matches.Total, filter)
	}

	matches, err := svc.FindStudents(ctx, query.FindStudents{SessionId: older, Filter: `engagement_score = 60`})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, studentIds(matches))
}

func TestFindStudentsInvalidFilter(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	for _, filter := range []string{
		`engagement_score > "high"`,
		`student_name > 3`,
		`shoe_size = 9`,
		`status > "present"`,
		`detections CONTAINS 3`,
		`status =`,
		`(status = "present"`,
	} {
		_, err := svc.FindStudents(ctx, query.FindStudents{Filter: filter})
		assert.ErrorIs(t, err, query.ErrInvalidArguments, filter)
	}
}

func TestFindStudentsThroughExecute(t *testing.T) {
	svc := seeded(t)

	op, err := query.Decode("find_students", []byte(`{"filter": "status = \"absent\""}`))
	require.NoError(t, err)

	res, err := svc.Execute(context.Background(), op)
	require.NoError(t, err)
	matches, ok := res.(query.Matches)
	require.True(t, ok)
	assert.Equal(t, []int64{2}, studentIds(matches))
}
