// SPDX-License-Identifier: MIT

package pyon

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	status int
	hz     float64
}

func (r reading) MarshalPyon() (any, error) {
	return Tuple{r.status, r.hz}, nil
}

func TestEncode_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"int", 3260, "3260"},
		{"negative int64", int64(-4), "-4"},
		{"uint16", uint16(7), "7"},
		{"integral float keeps point", 25.0, "25.0"},
		{"fraction", 1013.25, "1013.25"},
		{"large float", 123.456789e12, "123456789000000.0"},
		{"huge float", 1e16, "1e+16"},
		{"tiny float", 1.5e-05, "1.5e-05"},
		{"inf", math.Inf(1), "inf"},
		{"negative inf", math.Inf(-1), "-inf"},
		{"nan", math.NaN(), "nan"},
		{"string", "WLM simulator", `"WLM simulator"`},
		{"string escapes", "a\"b\n", `"a\"b\n"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Containers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"empty list", []any{}, "[]"},
		{"list", []any{int64(1), "x", nil}, `[1, "x", null]`},
		{"empty tuple", Tuple{}, "()"},
		{"single tuple", Tuple{1}, "(1,)"},
		{"pair tuple", Tuple{0, 1.5}, "(0, 1.5)"},
		{"empty set", Set{}, "set()"},
		{"set", Set{"id", "ping"}, `{"id", "ping"}`},
		{"dict sorted keys", map[string]any{"status": "ok", "ret": nil}, `{"ret": null, "status": "ok"}`},
		{"string slice", []string{"a", "b"}, `["a", "b"]`},
		{"marshaler", reading{status: 2, hz: 0}, "(2, 0.0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Unsupported(t *testing.T) {
	_, err := Encode(struct{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = Encode(map[string]any{"bad": make(chan int)})
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestDecode_PythonRepr(t *testing.T) {
	// Lines as a sipyco peer writes them: repr() strings and tuples.
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"None", "None", nil},
		{"null", "null", nil},
		{"True", "True", true},
		{"false", "false", false},
		{"int", "42", int64(42)},
		{"negative int", "-4", int64(-4)},
		{"float", "1013.25", 1013.25},
		{"exponent", "1.23456789e+14", 123.456789e12},
		{"single quoted", `'get_frequency'`, "get_frequency"},
		{"double quoted", `"a b"`, "a b"},
		{"escaped quote", `'it\'s'`, "it's"},
		{"hex escape", `'\xe9'`, "é"},
		{"utf-8 passthrough", `"µW"`, "µW"},
		{"empty tuple", "()", Tuple{}},
		{"single tuple", "(1,)", Tuple{int64(1)}},
		{"parenthesised", "(1)", int64(1)},
		{"list trailing comma", "[1, 2,]", []any{int64(1), int64(2)}},
		{"empty set", "set()", Set{}},
		{"set", "{'ping', 'id'}", Set{"ping", "id"}},
		{"empty dict", "{}", map[string]any{}},
		{
			"call request",
			`{'action': 'call', 'name': 'get_frequency', 'args': (1,), 'kwargs': {}}`,
			map[string]any{
				"action": "call",
				"name":   "get_frequency",
				"args":   Tuple{int64(1)},
				"kwargs": map[string]any{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestDecode_SpecialFloats(t *testing.T) {
	v, err := Decode("inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.(float64), 1))

	v, err = Decode("-inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.(float64), -1))

	v, err = Decode("nan")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v.(float64)))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"trailing input", "1 2"},
		{"unterminated string", `'abc`},
		{"unterminated list", "[1, 2"},
		{"unknown name", "foo"},
		{"constructor", "OrderedDict([('a', 1)])"},
		{"non-string key", "{1: 2}"},
		{"missing colon", "{'a': 1, 'b'}"},
		{"huge int", "123456789012345678901234567890"},
		{"above int64", "9223372036854775808"},
		{"below int64", "-9223372036854775809"},
		{"bad escape", `'\xZZ'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			require.Error(t, err)
			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "want *SyntaxError, got %T: %v", err, err)
		})
	}
}

func TestRoundTrip_IntegerBounds(t *testing.T) {
	for _, n := range []int64{math.MinInt64, math.MinInt64 + 1, -1, 0, math.MaxInt64} {
		line, err := Encode(n)
		require.NoError(t, err)
		v, err := Decode(line)
		require.NoError(t, err, line)
		assert.Equal(t, n, v, line)
	}
	v, err := Decode("- 42")
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)
}

func TestDecode_DepthLimit(t *testing.T) {
	deep := ""
	for i := 0; i < maxDepth+2; i++ {
		deep += "["
	}
	_, err := Decode(deep)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestRoundTrip_Reply(t *testing.T) {
	reply := map[string]any{
		"status": "failed",
		"exception": map[string]any{
			"class":     "WLMException",
			"message":   "ping failed",
			"traceback": []any{"  in HighFinesse.ping\n"},
		},
	}
	line, err := Encode(reply)
	require.NoError(t, err)

	got, err := Decode(line)
	require.NoError(t, err)
	if diff := cmp.Diff(reply, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
