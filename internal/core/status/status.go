package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Value is the normalized form of a persisted presence flag.
type Value int

const (
	Unknown Value = iota
	True
	False
)

var falseAliases = map[string]struct{}{
	"false": {}, "f": {}, "0": {}, "no": {}, "absent": {}, "n": {},
}

var trueAliases = map[string]struct{}{
	"true": {}, "t": {}, "1": {}, "yes": {}, "present": {}, "y": {},
}

func (v Value) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Bool returns the boolean form and whether the value was classified.
func (v Value) Bool() (bool, bool) {
	switch v {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

// Repr is the canonical persisted representation: a bool, or nil for Unknown.
func (v Value) Repr() any {
	if b, ok := v.Bool(); ok {
		return b
	}
	return nil
}

func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Normalize classifies a raw status read from storage. Booleans are returned
// as-is, known string aliases are matched case-insensitively, numbers use
// zero/nonzero truthiness, and everything else is Unknown.
func Normalize(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Unknown
	case bool:
		return FromBool(v)
	case *bool:
		if v == nil {
			return Unknown
		}
		return FromBool(*v)
	case Value:
		return v
	}

	s := strings.ToLower(strings.TrimSpace(stringify(raw)))
	if _, ok := falseAliases[s]; ok {
		return False
	}
	if _, ok := trueAliases[s]; ok {
		return True
	}

	if f, ok := numeric(raw); ok {
		return FromBool(f != 0)
	}

	return Unknown
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ParseJSON decodes a raw JSON status column and normalizes it. Numbers are
// decoded as json.Number so integer flags keep their exact value.
func ParseJSON(data []byte) Value {
	if len(data) == 0 {
		return Unknown
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		// Unquoted legacy text that never made it through a JSON encoder.
		return Normalize(string(data))
	}
	return Normalize(raw)
}

// Tally counts normalized statuses, keeping ambiguous values in their own
// bucket.
type Tally struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Unknown int `json:"unknown"`
}

func (t *Tally) Add(v Value) {
	switch v {
	case True:
		t.Present++
	case False:
		t.Absent++
	default:
		t.Unknown++
	}
}

func (t Tally) Total() int {
	return t.Present + t.Absent + t.Unknown
}
