package features

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		name  string
		input any
		kind  Kind
		str   string
	}{
		{"string", "subway", KindString, "subway"},
		{"bool", true, KindBool, "true"},
		{"json number", json.Number("6"), KindNumber, "6"},
		{"float", 2.5, KindNumber, "2.5"},
		{"int", 3, KindNumber, "3"},
		{"int64", int64(-7), KindNumber, "-7"},
		{"value", StringValue("x"), KindString, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.str, v.String())
			assert.True(t, v.Valid())
		})
	}
}

func TestValueOfRejectsCompositeValues(t *testing.T) {
	for _, in := range []any{nil, []any{"a"}, map[string]any{"a": "b"}, json.Number("x")} {
		_, err := ValueOf(in)
		assert.Error(t, err, "input %#v", in)
	}
}

func TestValueAccessors(t *testing.T) {
	s, ok := StringValue("a").Str()
	assert.True(t, ok)
	assert.Equal(t, "a", s)

	_, ok = StringValue("a").Float()
	assert.False(t, ok)

	n, ok := NumberValue(1.5).Float()
	assert.True(t, ok)
	assert.Equal(t, 1.5, n)

	b, ok := BoolValue(true).Bool()
	assert.True(t, ok)
	assert.True(t, b)

	var zero Value
	assert.False(t, zero.Valid())
	assert.Nil(t, zero.Interface())
	assert.Equal(t, "", zero.String())
	assert.Equal(t, "invalid", zero.Kind().String())

	assert.True(t, StringValue("1").Equal(StringValue("1")))
	assert.False(t, StringValue("1").Equal(NumberValue(1)))
}

func TestValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{
		"s": StringValue("x"),
		"n": NumberValue(2),
		"b": BoolValue(false),
		"z": {},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"x","n":2,"b":false,"z":null}`, string(data))

	_, err = json.Marshal(NumberValue(math.Inf(1)))
	assert.Error(t, err)
}
