package query

import (
	"fmt"
	"strings"

	"attendance-backend/internal/core/status"
	"attendance-backend/internal/database"

	"github.com/alecthomas/participle/v2"
)

/*
Record filters use a small query language:

Query      := Expr
Expr       := OrExpr ( "OR" OrExpr )*
OrExpr     := Condition ( "AND" Condition )*
Condition  := "NOT"? ( Comparison | "(" Expr ")" )
Comparison := <field> Op Value
Op         := "CONTAINS" | "<" | ">" | "="
Value      := <string> | <number>

For example: status = "present" AND engagement_score > 70
*/

var filterParser = participle.MustBuild[filterQuery](
	participle.Unquote("String"),
	participle.Union[filterValue](stringValue{}, numberValue{}),
)

// RecordFilter selects attendance records.
type RecordFilter interface {
	Matches(r *database.AttendanceRecord) bool
}

var numericFields = map[string]func(r *database.AttendanceRecord) float64{
	"student_id":            func(r *database.AttendanceRecord) float64 { return float64(r.StudentId) },
	"attendance_score":      func(r *database.AttendanceRecord) float64 { return r.AttendanceScore },
	"engagement_score":      func(r *database.AttendanceRecord) float64 { return r.EngagementScore },
	"presence_duration_sec": func(r *database.AttendanceRecord) float64 { return r.PresenceDurationSec },
	"detections":            func(r *database.AttendanceRecord) float64 { return float64(r.Detections) },
	"speaking_time_sec":     func(r *database.AttendanceRecord) float64 { return float64(r.SpeakingTimeSec) },
	"avg_similarity":        func(r *database.AttendanceRecord) float64 { return r.AvgSimilarity },
	"avg_confidence":        func(r *database.AttendanceRecord) float64 { return r.AvgConfidence },
}

var stringFields = map[string]func(r *database.AttendanceRecord) string{
	"student_name": func(r *database.AttendanceRecord) string { return r.StudentName },
	"session_id":   func(r *database.AttendanceRecord) string { return r.SessionId },
	"session_date": func(r *database.AttendanceRecord) string { return r.SessionDate },
	"class_name":   func(r *database.AttendanceRecord) string { return r.ClassName },
}

// ParseRecordFilter compiles a filter expression. Errors wrap
// ErrInvalidArguments.
func ParseRecordFilter(query string) (RecordFilter, error) {
	q, err := filterParser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing filter '%s': %w", ErrInvalidArguments, query, err)
	}

	filter, err := q.Expr.toFilter()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid filter '%s': %w", ErrInvalidArguments, query, err)
	}

	return filter, nil
}

type filterQuery struct {
	Expr *orGroup `@@`
}

type orGroup struct {
	Ors []*andGroup `@@ ( "OR" @@ )*`
}

func (g *orGroup) toFilter() (RecordFilter, error) {
	if len(g.Ors) == 1 {
		return g.Ors[0].toFilter()
	}

	filters := make([]RecordFilter, 0, len(g.Ors))
	for _, and := range g.Ors {
		f, err := and.toFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return anyOf(filters), nil
}

type andGroup struct {
	Ands []*condition `@@ ( "AND" @@ )*`
}

func (g *andGroup) toFilter() (RecordFilter, error) {
	if len(g.Ands) == 1 {
		return g.Ands[0].toFilter()
	}

	filters := make([]RecordFilter, 0, len(g.Ands))
	for _, cond := range g.Ands {
		f, err := cond.toFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return allOf(filters), nil
}

type condition struct {
	Not     bool     `@"NOT"?`
	Operand *operand `@@`
}

type operand struct {
	Comparison *comparison `  @@`
	SubExpr    *orGroup    `| "(" @@ ")"`
}

func (c *condition) toFilter() (RecordFilter, error) {
	var (
		filter RecordFilter
		err    error
	)
	if c.Operand.Comparison != nil {
		filter, err = c.Operand.Comparison.toFilter()
	} else {
		filter, err = c.Operand.SubExpr.toFilter()
	}
	if err != nil {
		return nil, err
	}

	if c.Not {
		return not{filter}, nil
	}
	return filter, nil
}

type comparison struct {
	Field string      `@Ident`
	Op    string      `@("CONTAINS" | "<" | ">" | "=")`
	Value filterValue `@@`
}

func (c *comparison) toFilter() (RecordFilter, error) {
	if get, ok := numericFields[c.Field]; ok {
		n, ok := c.Value.(numberValue)
		if !ok {
			return nil, fmt.Errorf("field %s must be compared to a number", c.Field)
		}
		if c.Op == "CONTAINS" {
			return nil, fmt.Errorf("CONTAINS cannot be used with numeric field %s", c.Field)
		}
		return numberCmp{get: get, op: c.Op, value: n.Value}, nil
	}

	if get, ok := stringFields[c.Field]; ok {
		s, ok := c.Value.(stringValue)
		if !ok {
			return nil, fmt.Errorf("field %s must be compared to a string", c.Field)
		}
		return stringCmp{get: get, op: c.Op, value: s.Value}, nil
	}

	if c.Field == "status" {
		s, ok := c.Value.(stringValue)
		if !ok || c.Op != "=" {
			return nil, fmt.Errorf(`status only supports = with a string such as "present"`)
		}
		return statusEq{value: status.Normalize(s.Value)}, nil
	}

	return nil, fmt.Errorf("unknown field %s", c.Field)
}

type filterValue interface{ value() }

type stringValue struct {
	Value string `@String`
}

func (stringValue) value() {}

type numberValue struct {
	Value float64 `@(Float | Int)`
}

func (numberValue) value() {}

type allOf []RecordFilter

func (f allOf) Matches(r *database.AttendanceRecord) bool {
	for _, filter := range f {
		if !filter.Matches(r) {
			return false
		}
	}
	return true
}

type anyOf []RecordFilter

func (f anyOf) Matches(r *database.AttendanceRecord) bool {
	for _, filter := range f {
		if filter.Matches(r) {
			return true
		}
	}
	return false
}

type not struct {
	filter RecordFilter
}

func (f not) Matches(r *database.AttendanceRecord) bool {
	return !f.filter.Matches(r)
}

type numberCmp struct {
	get   func(r *database.AttendanceRecord) float64
	op    string
	value float64
}

func (f numberCmp) Matches(r *database.AttendanceRecord) bool {
	v := f.get(r)
	switch f.op {
	case "<":
		return v < f.value
	case ">":
		return v > f.value
	default:
		return v == f.value
	}
}

type stringCmp struct {
	get   func(r *database.AttendanceRecord) string
	op    string
	value string
}

func (f stringCmp) Matches(r *database.AttendanceRecord) bool {
	v := f.get(r)
	switch f.op {
	case "CONTAINS":
		return strings.Contains(strings.ToLower(v), strings.ToLower(f.value))
	case "<":
		return v < f.value
	case ">":
		return v > f.value
	default:
		return v == f.value
	}
}

// statusEq compares normalized presence, so "present", "yes" and "true" are
// equivalent. Any unrecognized value selects unknown statuses.
type statusEq struct {
	value status.Value
}

func (f statusEq) Matches(r *database.AttendanceRecord) bool {
	return r.Presence() == f.value
}
