package status_test

import (
	"encoding/json"
	"testing"

	"attendance-backend/internal/core/status"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAliases(t *testing.T) {
	for _, raw := range []any{"false", "f", "0", "no", "absent", "n", " False ", "NO", "Absent"} {
		assert.Equal(t, status.False, status.Normalize(raw), "raw=%q", raw)
	}
	for _, raw := range []any{"true", "t", "1", "yes", "present", "y", "TRUE", " Present", "Y"} {
		assert.Equal(t, status.True, status.Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalizeMixedEncodings(t *testing.T) {
	falses := []any{"False", 0, false, "no", 0.0, int64(0), json.Number("0")}
	for _, raw := range falses {
		assert.Equal(t, status.False, status.Normalize(raw), "raw=%v (%T)", raw, raw)
	}

	trues := []any{"TRUE", 1, true, "present", 2.5, uint8(3), json.Number("7"), -1}
	for _, raw := range trues {
		assert.Equal(t, status.True, status.Normalize(raw), "raw=%v (%T)", raw, raw)
	}
}

func TestNormalizeUnknown(t *testing.T) {
	for _, raw := range []any{"maybe", "", "  ", "2", "null", nil, struct{}{}, []int{1}} {
		assert.Equal(t, status.Unknown, status.Normalize(raw), "raw=%v", raw)
	}

	var nilBool *bool
	assert.Equal(t, status.Unknown, status.Normalize(nilBool))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		"false", "f", "0", "no", "absent", "n",
		"true", "t", "1", "yes", "present", "y",
		true, false, 0, 1, 42, "maybe", nil,
	}
	for _, raw := range inputs {
		once := status.Normalize(raw)
		assert.Equal(t, once, status.Normalize(once.Repr()), "raw=%v", raw)
		assert.Equal(t, once, status.Normalize(once), "raw=%v", raw)
	}
}

func TestParseJSON(t *testing.T) {
	assert.Equal(t, status.True, status.ParseJSON([]byte(`true`)))
	assert.Equal(t, status.False, status.ParseJSON([]byte(`"False"`)))
	assert.Equal(t, status.False, status.ParseJSON([]byte(`0`)))
	assert.Equal(t, status.True, status.ParseJSON([]byte(`1`)))
	assert.Equal(t, status.Unknown, status.ParseJSON([]byte(`"maybe"`)))
	assert.Equal(t, status.Unknown, status.ParseJSON([]byte(`null`)))
	assert.Equal(t, status.Unknown, status.ParseJSON(nil))
	assert.Equal(t, status.True, status.ParseJSON([]byte(`yes`)))
}

func TestTally(t *testing.T) {
	var tally status.Tally
	for _, raw := range []any{"False", 0, false, "no", "TRUE", 1, "present", "maybe"} {
		tally.Add(status.Normalize(raw))
	}

	assert.Equal(t, status.Tally{Present: 3, Absent: 4, Unknown: 1}, tally)
	assert.Equal(t, 8, tally.Total())
}

func TestBool(t *testing.T) {
	b, ok := status.True.Bool()
	assert.True(t, b)
	assert.True(t, ok)

	b, ok = status.False.Bool()
	assert.False(t, b)
	assert.True(t, ok)

	_, ok = status.Unknown.Bool()
	assert.False(t, ok)
	assert.Nil(t, status.Unknown.Repr())
	assert.Equal(t, "unknown", status.Unknown.String())
}
