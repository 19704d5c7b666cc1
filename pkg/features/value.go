// Package features maps Overpass elements into flat records and assembles
// them into a point-geometry feature table.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a scalar attribute: a string, a number or a boolean.
// The zero Value is invalid and stands for a missing attribute.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// NumberValue wraps a number
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a decoded tag value. Strings, booleans, Go numeric types
// and json.Number are accepted; anything else is an error.
func ValueOf(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return NumberValue(f), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// Kind returns the variant held by v
func (v Value) Kind() Kind { return v.kind }

// Valid reports whether v holds a value
func (v Value) Valid() bool { return v.kind != KindInvalid }

// Str returns the string and whether v is a string
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Float returns the number and whether v is a number
func (v Value) Float() (float64, bool) { return v.n, v.kind == KindNumber }

// Bool returns the boolean and whether v is a boolean
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Interface returns the value as a plain Go value, nil when invalid
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String formats the value for display. Invalid values format as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether both values have the same kind and content
func (v Value) Equal(o Value) bool {
	return v == o
}

// MarshalJSON encodes the value as its plain JSON scalar
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.n) || math.IsInf(v.n, 0)) {
		return nil, fmt.Errorf("cannot encode non-finite number %v", v.n)
	}
	return json.Marshal(v.Interface())
}
