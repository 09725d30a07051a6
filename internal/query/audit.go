package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"attendance-backend/internal/core/status"
	"attendance-backend/internal/database"
)

// StatusAudit reports how presence flags are physically encoded across the
// record table alongside how they normalize.
type StatusAudit struct {
	Total    int `json:"total"`
	Booleans int `json:"booleans"`
	Strings  int `json:"strings"`
	Numbers  int `json:"numbers"`
	Nulls    int `json:"nulls"`
	Other    int `json:"other"`

	Normalized status.Tally `json:"normalized"`

	// NonCanonical lists records whose status is neither a JSON boolean nor
	// null.
	NonCanonical []string `json:"non_canonical,omitempty"`
}

func encodingOf(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "null"
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "other"
	}
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64:
		return "number"
	default:
		return "other"
	}
}

func (s *Service) AuditStatuses(ctx context.Context) (StatusAudit, error) {
	records, err := s.records.Scan(ctx, database.RecordFilter{})
	if err != nil {
		return StatusAudit{}, fmt.Errorf("error scanning records: %w", err)
	}

	var audit StatusAudit
	for _, r := range records {
		audit.Total++
		audit.Normalized.Add(r.Presence())

		switch encodingOf(r.Status) {
		case "bool":
			audit.Booleans++
			continue
		case "string":
			audit.Strings++
		case "number":
			audit.Numbers++
		case "null":
			audit.Nulls++
			continue
		default:
			audit.Other++
		}
		audit.NonCanonical = append(audit.NonCanonical, r.RecordId)
	}
	return audit, nil
}
