package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Operation is one of the read queries the service answers. The set is
// closed: only types in this package implement it.
type Operation interface {
	Name() string
	isOperation()
}

type StudentLookup struct {
	StudentId int64  `json:"student_id"`
	SessionId string `json:"session_id,omitempty"`
}

type SessionSummary struct {
	SessionId string `json:"session_id,omitempty"`
}

type EngagementRanking struct {
	SessionId string `json:"session_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type Absentees struct {
	SessionId string `json:"session_id,omitempty"`
}

type ListSessions struct{}

type CompareSessions struct {
	First  string `json:"session_id_1"`
	Second string `json:"session_id_2"`
}

type FindStudents struct {
	SessionId string `json:"session_id,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

func (StudentLookup) Name() string     { return "get_student_data" }
func (SessionSummary) Name() string    { return "get_class_summary" }
func (EngagementRanking) Name() string { return "get_engagement_rankings" }
func (Absentees) Name() string         { return "get_absent_students" }
func (ListSessions) Name() string      { return "list_all_sessions" }
func (CompareSessions) Name() string   { return "compare_sessions" }
func (FindStudents) Name() string      { return "find_students" }

func (StudentLookup) isOperation()     {}
func (SessionSummary) isOperation()    {}
func (EngagementRanking) isOperation() {}
func (Absentees) isOperation()         {}
func (ListSessions) isOperation()      {}
func (CompareSessions) isOperation()   {}
func (FindStudents) isOperation()      {}

// Execute runs op and returns its JSON-serializable result.
func (s *Service) Execute(ctx context.Context, op Operation) (any, error) {
	switch op := op.(type) {
	case StudentLookup:
		return s.StudentLookup(ctx, op)
	case SessionSummary:
		return s.SessionSummary(ctx, op)
	case EngagementRanking:
		return s.EngagementRanking(ctx, op)
	case Absentees:
		return s.Absentees(ctx, op)
	case ListSessions:
		return s.ListSessions(ctx, op)
	case CompareSessions:
		return s.CompareSessions(ctx, op)
	case FindStudents:
		return s.FindStudents(ctx, op)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
}

func decodeArgs[T Operation](args []byte) (Operation, error) {
	var op T
	args = bytes.TrimSpace(args)
	if len(args) == 0 || string(args) == "null" {
		return op, nil
	}
	if err := json.Unmarshal(args, &op); err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidArguments, op.Name(), err)
	}
	return op, nil
}

// Decode maps a tool call (name plus JSON arguments) to an Operation.
func Decode(name string, args []byte) (Operation, error) {
	var (
		op  Operation
		err error
	)
	switch name {
	case StudentLookup{}.Name():
		op, err = decodeArgs[StudentLookup](args)
		if err == nil && op.(StudentLookup).StudentId == 0 {
			err = fmt.Errorf("%w: student_id is required", ErrInvalidArguments)
		}
	case SessionSummary{}.Name():
		op, err = decodeArgs[SessionSummary](args)
	case EngagementRanking{}.Name():
		op, err = decodeArgs[EngagementRanking](args)
	case Absentees{}.Name():
		op, err = decodeArgs[Absentees](args)
	case ListSessions{}.Name():
		op, err = decodeArgs[ListSessions](args)
	case CompareSessions{}.Name():
		op, err = decodeArgs[CompareSessions](args)
	case FindStudents{}.Name():
		op, err = decodeArgs[FindStudents](args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Tool describes an operation for a function-calling language model.
// Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var sessionIdParam = map[string]any{
	"type":        "string",
	"description": "Session id such as session_record_001. Defaults to the latest session.",
}

func Tools() []Tool {
	return []Tool{
		{
			Name:        StudentLookup{}.Name(),
			Description: "Get attendance and engagement data for a specific student by id, optionally limited to one session.",
			Parameters: object(map[string]any{
				"student_id": map[string]any{"type": "integer"},
				"session_id": sessionIdParam,
			}, "student_id"),
		},
		{
			Name:        SessionSummary{}.Name(),
			Description: "Get present, absent and unknown counts, attendance rate and average scores for a class session.",
			Parameters:  object(map[string]any{"session_id": sessionIdParam}),
		},
		{
			Name:        EngagementRanking{}.Name(),
			Description: "Get the most engaged students in a session.",
			Parameters: object(map[string]any{
				"session_id": sessionIdParam,
				"limit":      map[string]any{"type": "integer", "description": "Number of students to return, default 5."},
			}),
		},
		{
			Name:        Absentees{}.Name(),
			Description: "List the students marked absent in a session.",
			Parameters:  object(map[string]any{"session_id": sessionIdParam}),
		},
		{
			Name:        ListSessions{}.Name(),
			Description: "List the most recent sessions and the total number of sessions.",
			Parameters:  object(map[string]any{}),
		},
		{
			Name:        CompareSessions{}.Name(),
			Description: "Compare attendance rate, engagement and head count between two sessions.",
			Parameters: object(map[string]any{
				"session_id_1": map[string]any{"type": "string"},
				"session_id_2": map[string]any{"type": "string"},
			}, "session_id_1", "session_id_2"),
		},
		{
			Name:        FindStudents{}.Name(),
			Description: "Find students in a session whose records match a filter expression.",
			Parameters: object(map[string]any{
				"session_id": sessionIdParam,
				"filter": map[string]any{
					"type": "string",
					"description": `Filter such as: status = "present" AND engagement_score > 70. ` +
						"Fields: status, student_id, student_name, attendance_score, engagement_score, " +
						"presence_duration_sec, detections, speaking_time_sec, avg_similarity, avg_confidence, class_name, session_date. " +
						"Operators: =, <, >, CONTAINS. Combine with AND, OR, NOT and parentheses.",
				},
			}),
		},
	}
}
