package wampc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

func sampleValues() []Value {
	return []Value{
		None(),
		Int(-5),
		Int(int64(math.MinInt64)),
		Uint(uint64(math.MaxUint64)),
		Float(2.5),
		Bool(true),
		Char('é'),
		String("hello"),
		Bytes([]byte{0, 1, 2}),
		List(Int(1), String("a"), List(), None()),
		Dict(map[string]Value{"a": Int(1), "b": List(Bool(false))}),
	}
}

func TestValueRoundTrip(t *testing.T) {
	for _, v := range sampleValues() {
		got := ValueOf(v.Interface())
		assert.True(t, got.Equal(v), "%s came back as %s", v, got)
	}
	g := Generic(point{1, 2})
	assert.True(t, ValueOf(g.Interface()).Equal(g))
}

func TestValueSerializerRoundTrip(t *testing.T) {
	for _, ser := range []Serialization{JSON, MSGPACK, CBOR} {
		s, err := NewSerializer(ser)
		require.NoError(t, err)
		for _, v := range append(sampleValues(), Uint(uint64(math.MaxInt64))) {
			// binary codecs decode integers as int64
			if v.Kind() == KindUint && v.u > math.MaxInt64 {
				continue
			}
			b, err := s.Serialize(&Publish{Request: 1, Topic: "t", Arguments: []interface{}{v}})
			require.NoError(t, err, "%s %s", ser, v)
			msg, err := s.Deserialize(b)
			require.NoError(t, err)
			got := ValueOf(msg.(*Publish).Arguments[0])
			assert.True(t, got.Equal(v), "%s: %s came back as %s", ser, v, got)
		}
	}
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, KindInt, ValueOf(int8(3)).Kind())
	assert.Equal(t, KindUint, ValueOf(uint16(3)).Kind())
	assert.Equal(t, KindFloat, ValueOf(float32(1.5)).Kind())
	assert.Equal(t, KindBytes, ValueOf(BinaryData{1}).Kind())
	assert.Equal(t, KindList, ValueOf([]string{"a", "b"}).Kind())
	assert.Equal(t, KindDict, ValueOf(map[string]int{"a": 1}).Kind())
	assert.Equal(t, KindNone, ValueOf((*point)(nil)).Kind())
	assert.Equal(t, KindNone, ValueOf([]int(nil)).Kind())
	assert.Equal(t, KindGeneric, ValueOf(point{}).Kind())
	assert.Equal(t, KindGeneric, ValueOf(map[int]string{1: "a"}).Kind())

	v := Int(7)
	assert.Equal(t, v, ValueOf(v))
	n, ok := v.Int()
	assert.True(t, ok)
	assert.EqualValues(t, 7, n)
	_, ok = v.Str()
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	equal := [][2]Value{
		{Int(3), Uint(uint64(3))},
		{Int(3), Float(3.0)},
		{Int(0), Float(math.Copysign(0, -1))},
		{Char('x'), String("x")},
		{List(Int(1)), List(Uint(uint64(1)))},
		{Dict(map[string]Value{"a": Int(1)}), Dict(map[string]Value{"a": Float(1.0)})},
		{None(), None()},
	}
	for _, pair := range equal {
		assert.True(t, pair[0].Equal(pair[1]), "%s != %s", pair[0], pair[1])
	}

	unequal := [][2]Value{
		{Int(-1), Uint(uint64(math.MaxUint64))},
		{Int(1), Float(1.5)},
		{Int(1), String("1")},
		{Char('a'), String("ab")},
		{Bool(false), None()},
		{Bytes([]byte("a")), String("a")},
		{List(Int(1)), List(Int(1), Int(2))},
		{Dict(map[string]Value{"a": Int(1)}), Dict(map[string]Value{"b": Int(1)})},
	}
	for _, pair := range unequal {
		assert.False(t, pair[0].Equal(pair[1]), "%s == %s", pair[0], pair[1])
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "dict", KindDict.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.Equal(t, "None", None().String())
	assert.Equal(t, `"hi"`, String("hi").String())
}
