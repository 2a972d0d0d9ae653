package wampc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	Name  string  `json:"name"`
	Age   int     `json:"age"`
	Email *string `json:"email"`
}

func TestPayloadDecode(t *testing.T) {
	p := NewPayload(
		[]interface{}{int64(1), "x", []interface{}{int64(2), int64(3)}},
		map[string]interface{}{"name": "alice", "age": int64(30)},
	)

	assert.True(t, p.HasArgs())
	assert.True(t, p.HasKwargs())
	assert.Equal(t, 3, p.Len())

	var s string
	require.NoError(t, p.DecodeArg(1, &s))
	assert.Equal(t, "x", s)

	var r rune
	require.NoError(t, p.DecodeArg(1, &r))
	assert.Equal(t, 'x', r)

	var pt point
	require.NoError(t, p.DecodeArg(2, &pt))
	assert.Equal(t, point{2, 3}, pt)

	var v Value
	require.NoError(t, p.DecodeArg(0, &v))
	assert.True(t, v.Equal(Int(1)))

	u, err := DecodeKwargs[user](p)
	require.NoError(t, err)
	assert.Equal(t, user{Name: "alice", Age: 30}, u)

	m, err := DecodeKwargs[map[string]interface{}](p)
	require.NoError(t, err)
	assert.Equal(t, "alice", m["name"])

	var age uint8
	require.NoError(t, p.DecodeKwarg("age", &age))
	assert.EqualValues(t, 30, age)
}

func TestPayloadDecodeIsRepeatable(t *testing.T) {
	p := NewPayload([]interface{}{int64(1), int64(2)}, nil)
	a, err := DecodeArgs[[]int](p)
	require.NoError(t, err)
	b, err := DecodeArgs[[]float64](p)
	require.NoError(t, err)
	c, err := DecodeArgs[[]int](p)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, a)
	assert.Equal(t, []float64{1, 2}, b)
	assert.Equal(t, a, c)
	assert.Len(t, p.Args(), 2)
}

func TestPayloadDecodeErrors(t *testing.T) {
	p := NewPayload(
		[]interface{}{int64(300), "x"},
		map[string]interface{}{"name": "bob", "age": "old"},
	)

	cases := []struct {
		name string
		err  error
		path string
		kind error
	}{
		{"missing arg", p.DecodeArg(5, new(int)), "args[5]", ErrMissingField},
		{"overflow", p.DecodeArg(0, new(int8)), "args[0]", ErrTypeMismatch},
		{"string into int", p.DecodeArg(1, new(int)), "args[1]", ErrTypeMismatch},
		{"bad field", p.DecodeKwargs(new(user)), "kwargs.age", ErrTypeMismatch},
		{"missing kwarg", p.DecodeKwarg("email", new(string)), "kwargs.email", ErrMissingField},
		{"too few for array", p.DecodeArgs(new([3]int)), "args", ErrTypeMismatch},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var derr *DecodeError
			require.True(t, errors.As(c.err, &derr), "got %v", c.err)
			assert.Equal(t, c.path, derr.Path)
			assert.ErrorIs(t, c.err, c.kind)
		})
	}

	_, err := DecodeKwargs[user](NewPayload(nil, map[string]interface{}{"name": "bob"}))
	var derr *DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "kwargs.age", derr.Path)
	assert.ErrorIs(t, err, ErrMissingField)

	assert.ErrorIs(t, p.DecodeArgs([]int{}), ErrTypeMismatch)
}

func TestEmptyPayload(t *testing.T) {
	var p *Payload
	assert.False(t, p.HasArgs())
	assert.Equal(t, 0, p.Len())
	_, ok := p.Arg(0)
	assert.False(t, ok)

	nums, err := DecodeArgs[[]int](p)
	require.NoError(t, err)
	assert.Empty(t, nums)

	kw, err := DecodeKwargs[map[string]string](NewPayload(nil, nil))
	require.NoError(t, err)
	assert.Empty(t, kw)
}
