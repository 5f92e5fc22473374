package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindBool
	KindTimestamp
)

// String returns the lower-case kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single dataset cell. The zero Value is Null.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	ts   time.Time
}

// Null returns the null cell
func Null() Value { return Value{} }

// Number wraps a float. NaN is stored as Null.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// Text wraps a string
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Timestamp wraps a time. The zero time is stored as Null.
func Timestamp(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}
	return Value{kind: KindTimestamp, ts: t}
}

// Kind reports the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null cell
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsNumber returns the float payload when v is a Number
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsText returns the string payload when v is Text
func (v Value) AsText() (string, bool) { return v.str, v.kind == KindText }

// AsBool returns the boolean payload when v is a Bool
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsTime returns the time payload when v is a Timestamp
func (v Value) AsTime() (time.Time, bool) { return v.ts, v.kind == KindTimestamp }

// Float coerces v to a float. Numbers and bools convert directly, text
// is parsed after trimming. Timestamps and nulls do not convert.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders v the way it would appear in a text cell. Null renders
// as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.num)
	case KindText:
		return v.str
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindTimestamp:
		if isMidnight(v.ts) {
			return v.ts.Format("2006-01-02")
		}
		return v.ts.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same variant and payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	}
	return false
}

// Key returns a string that is equal for equal cells and distinct across
// variants. It is used for grouping, hashing and distinct counts.
func (v Value) Key() string {
	switch v.kind {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return "s:" + v.str
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	case KindTimestamp:
		return "t:" + strconv.FormatInt(v.ts.UnixNano(), 10)
	default:
		return "null"
	}
}

// Compare orders two cells. Nulls sort last, numbers before text, and
// values of the same variant compare naturally.
func (v Value) Compare(o Value) int {
	if v.kind == KindNull || o.kind == KindNull {
		switch {
		case v.kind == o.kind:
			return 0
		case v.kind == KindNull:
			return 1
		default:
			return -1
		}
	}
	if v.kind != o.kind {
		if a, ok := v.Float(); ok {
			if b, ok := o.Float(); ok {
				return compareFloat(a, b)
			}
		}
		return int(v.kind) - int(o.kind)
	}
	switch v.kind {
	case KindNumber:
		return compareFloat(v.num, o.num)
	case KindText:
		return strings.Compare(v.str, o.str)
	case KindBool:
		switch {
		case v.b == o.b:
			return 0
		case !v.b:
			return -1
		default:
			return 1
		}
	case KindTimestamp:
		return v.ts.Compare(o.ts)
	}
	return 0
}

// Interface converts v into a plain Go value
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.str
	case KindBool:
		return v.b
	case KindTimestamp:
		return v.ts
	default:
		return nil
	}
}

// MarshalJSON encodes the cell as a JSON scalar. Timestamps use RFC 3339.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindText:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindTimestamp:
		return json.Marshal(v.ts.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Nested arrays and objects are kept
// as their compact JSON text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode cell: %w", err)
	}
	*v = ValueOf(raw)
	return nil
}

// ValueOf converts a decoded Go value into a cell
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String())
		}
		return Number(f)
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case bool:
		return Bool(t)
	case time.Time:
		return Timestamp(t)
	case *time.Time:
		if t == nil {
			return Null()
		}
		return Timestamp(*t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return Text(fmt.Sprint(t))
		}
		return Text(string(b))
	default:
		return Text(fmt.Sprint(t))
	}
}

// FormatNumber renders a float without a trailing ".0" for whole numbers
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
