package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"Aa": Int(5),
		"AA": Int(6),
	}
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aa"}, obj.SortedKeys())
	assert.Empty(t, Object{}.SortedKeys())
}

func TestObjectGet(t *testing.T) {
	obj := Object{"a": Int(1)}
	assert.Equal(t, Int(1), obj.Get("a"))
	assert.Equal(t, Null{}, obj.Get("missing"))
}

func TestObjectCloneIsShallowCopy(t *testing.T) {
	obj := Object{"a": Int(1)}
	clone := obj.Clone()
	clone["a"] = Int(2)
	assert.Equal(t, Int(1), obj["a"])
}

func TestUnmarshalValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Value
	}{
		{"null", `null`, Null{}},
		{"string", `"x"`, String("x")},
		{"int", `7`, Int(7)},
		{"bool", `false`, Bool(false)},
		{"array", `[1,"a",null]`, Array{Int(1), String("a"), Null{}}},
		{"object", `{"value":[1,2,3]}`, Object{"value": Array{Int(1), Int(2), Int(3)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := UnmarshalValue([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestUnmarshalValueRejects(t *testing.T) {
	for _, input := range []string{`1.5`, `1e3`, `{"a":0.1}`, ``, `99999999999999999999`} {
		_, err := UnmarshalValue([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestMarshalValue(t *testing.T) {
	b, err := MarshalValue(Object{"b": Array{Int(1), Null{}}, "a": Bool(true)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":true,"b":[1,null]}`, string(b))

	b, err = MarshalValue(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	_, err = MarshalValue(NoOp)
	assert.ErrorIs(t, err, ErrNoOpValue)
}

func TestObjectJSONNull(t *testing.T) {
	var req struct {
		Props Object `json:"props"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"props":null}`), &req))
	assert.Nil(t, req.Props)
}

func TestFromAnyAndToAny(t *testing.T) {
	in := map[string]any{
		"n":    int64(3),
		"s":    "x",
		"b":    true,
		"list": []any{int64(1), nil},
	}
	v, err := FromAny(in)
	require.NoError(t, err)
	assert.Equal(t, Object{
		"n":    Int(3),
		"s":    String("x"),
		"b":    Bool(true),
		"list": Array{Int(1), Null{}},
	}, v)
	assert.Equal(t, in, ToAny(v))
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
	_, err = FromAny([]any{1.25})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Object{"a": Int(1), "b": Int(2)}, Object{"b": Int(2), "a": Int(1)}))
	assert.True(t, Equal(nil, Null{}))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(NoOp, NoOp), "NoOp never compares equal")
}

func TestNoOp(t *testing.T) {
	assert.True(t, IsNoOp(NoOp))
	assert.False(t, IsNoOp(Null{}))
	assert.Equal(t, "noop", KindOf(NoOp))
}

func TestAccessors(t *testing.T) {
	n, ok := AsInt(Int(4))
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)

	_, ok = AsInt(String("4"))
	assert.False(t, ok)

	s, ok := AsString(String("x"))
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	b, ok := AsBool(Bool(true))
	assert.True(t, ok)
	assert.True(t, b)
}
