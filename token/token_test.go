package token

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEquals(t *testing.T) {
	require.True(t, Int(1).Equals(Int(1)))
	require.False(t, Int(1).Equals(Long(1)))
	require.True(t, Double(math.NaN()).Equals(Double(math.NaN())))
	require.False(t, Double(1).Equals(Double(2)))

	a := NewArray(Int(1), String("x"))
	require.True(t, a.Equals(NewArray(Int(1), String("x"))))
	require.False(t, a.Equals(NewArray(Int(1))))

	r := NewRecord(map[string]Token{"b": Int(2), "a": Boolean(true)})
	require.Equal(t, []string{"a", "b"}, r.Labels())
	require.True(t, r.Equals(NewRecord(map[string]Token{"a": Boolean(true), "b": Int(2)})))
	require.False(t, r.Equals(NewRecord(map[string]Token{"a": Boolean(false), "b": Int(2)})))
	require.Equal(t, "{a=true, b=2}", r.String())
}

func TestArray_CopiesInput(t *testing.T) {
	elems := []Token{Int(1), Int(2)}
	a := NewArray(elems...)
	elems[0] = Int(9)
	require.True(t, a.At(0).Equals(Int(1)))
	a.Elements()[1] = Int(9)
	require.True(t, a.At(1).Equals(Int(2)))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in  string
		exp Token
	}{
		{"42", Int(42)},
		{"-7", Int(-7)},
		{"42L", Long(42)},
		{"4294967296", Long(4294967296)},
		{"1.5", Double(1.5)},
		{"1e3", Double(1000)},
		{"true", Boolean(true)},
		{`"hi, \"there\""`, String(`hi, "there"`)},
		{"{}", NewArray()},
		{"{1, 2.0, \"x\"}", NewArray(Int(1), Double(2), String("x"))},
		{"{ {1}, {2} }", NewArray(NewArray(Int(1)), NewArray(Int(2)))},
		{"{x=1, y={2L}}", NewRecord(map[string]Token{"x": Int(1), "y": NewArray(Long(2))})},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			act, err := Parse(tt.in)
			require.NoError(t, err)
			require.True(t, tt.exp.Equals(act), "expected %s, got %s", tt.exp, act)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "abc", "{1, 2", `"open`, "{a=1, a=2}", "1 2", "12xL"} {
		_, err := Parse(in)
		require.Error(t, err, in)
	}
}

func TestString(t *testing.T) {
	require.Equal(t, "2.0", Double(2).String())
	require.Equal(t, "5L", Long(5).String())
	require.Equal(t, `{1, "a"}`, NewArray(Int(1), String("a")).String())
}
