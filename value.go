package wampc

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindNone is an absent value; it travels as nil/null.
	KindNone Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	// KindChar is a single character; it travels as a one-rune string.
	KindChar
	KindString
	// KindBytes travels as a binary string (base64 with a NUL prefix in JSON).
	KindBytes
	KindList
	KindDict
	// KindGeneric holds an application type the serializer encodes itself.
	KindGeneric
)

var kindNames = [...]string{"none", "int", "uint", "float", "bool", "char", "string", "bytes", "list", "dict", "generic"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is any value that can be carried in the arguments of a WAMP message.
// The zero Value is None.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	b    bool
	s    string
	raw  []byte
	list []Value
	dict map[string]Value
	gen  interface{}
}

type signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type float interface {
	~float32 | ~float64
}

func None() Value                      { return Value{} }
func Int[T signed](v T) Value          { return Value{kind: KindInt, i: int64(v)} }
func Uint[T unsigned](v T) Value       { return Value{kind: KindUint, u: uint64(v)} }
func Float[T float](v T) Value         { return Value{kind: KindFloat, f: float64(v)} }
func Bool(v bool) Value                { return Value{kind: KindBool, b: v} }
func Char(r rune) Value                { return Value{kind: KindChar, i: int64(r)} }
func String(s string) Value            { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value             { return Value{kind: KindBytes, raw: b} }
func List(vs ...Value) Value           { return Value{kind: KindList, list: vs} }
func Dict(m map[string]Value) Value    { return Value{kind: KindDict, dict: m} }
func Generic(v interface{}) Value      { return Value{kind: KindGeneric, gen: v} }
func (v Value) Kind() Kind             { return v.kind }
func (v Value) IsNone() bool           { return v.kind == KindNone }
func (v Value) Int() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) Uint() (uint64, bool)   { return v.u, v.kind == KindUint }
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) Bool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) Char() (rune, bool)     { return rune(v.i), v.kind == KindChar }
func (v Value) Str() (string, bool)    { return v.s, v.kind == KindString }
func (v Value) Bytes() ([]byte, bool)  { return v.raw, v.kind == KindBytes }
func (v Value) List() ([]Value, bool)  { return v.list, v.kind == KindList }

func (v Value) Dict() (map[string]Value, bool) { return v.dict, v.kind == KindDict }
func (v Value) Generic() (interface{}, bool)   { return v.gen, v.kind == KindGeneric }

// Interface returns the wire form of v: the plain Go value a Serializer
// encodes.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindChar:
		return string(rune(v.i))
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindList:
		l := make([]interface{}, len(v.list))
		for i := range v.list {
			l[i] = v.list[i].Interface()
		}
		return l
	case KindDict:
		m := make(map[string]interface{}, len(v.dict))
		for k, e := range v.dict {
			m[k] = e.Interface()
		}
		return m
	case KindGeneric:
		return v.gen
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindChar:
		return fmt.Sprintf("%q", rune(v.i))
	case KindString:
		return fmt.Sprintf("%q", v.s)
	}
	return fmt.Sprint(v.Interface())
}

// ValueOf classifies a plain Go value, typically one produced by a
// Serializer. Structs and other types it does not know become Generic.
func ValueOf(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return None()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case BinaryData:
		return Bytes(t)
	case []interface{}:
		l := make([]Value, len(t))
		for i := range t {
			l[i] = ValueOf(t[i])
		}
		return List(l...)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = ValueOf(e)
		}
		return Dict(m)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.String:
		return String(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return None()
		}
		l := make([]Value, rv.Len())
		for i := range l {
			l[i] = ValueOf(rv.Index(i).Interface())
		}
		return List(l...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return None()
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = ValueOf(iter.Value().Interface())
		}
		return Dict(m)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return None()
		}
	}
	return Generic(x)
}

// Equal reports whether a and b have the same wire representation. Numbers
// compare by numeric value whatever their kind, and a Char equals the
// one-rune String it is sent as.
func (v Value) Equal(o Value) bool {
	if n1, ok := v.number(); ok {
		n2, ok := o.number()
		return ok && n1.equal(n2)
	}
	if s1, ok := v.text(); ok {
		s2, ok := o.text()
		return ok && s1 == s2
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == o.b
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, e := range v.dict {
			oe, ok := o.dict[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	case KindGeneric:
		return reflect.DeepEqual(v.gen, o.gen)
	}
	return false
}

func (v Value) text() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindChar:
		return string(rune(v.i)), true
	}
	return "", false
}

// numeric holds a number in the widest form that represents it exactly.
type numeric struct {
	neg   bool
	mag   uint64
	frac  float64
	isInt bool
}

func (v Value) number() (numeric, bool) {
	switch v.kind {
	case KindInt:
		if v.i < 0 {
			return numeric{neg: true, mag: uint64(-(v.i + 1)) + 1, isInt: true}, true
		}
		return numeric{mag: uint64(v.i), isInt: true}, true
	case KindUint:
		return numeric{mag: v.u, isInt: true}, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<63 {
			if v.f < 0 {
				return numeric{neg: true, mag: uint64(-v.f), isInt: true}, true
			}
			return numeric{mag: uint64(v.f), isInt: true}, true
		}
		return numeric{frac: v.f}, true
	}
	return numeric{}, false
}

func (n numeric) equal(o numeric) bool {
	if n.isInt != o.isInt {
		return false
	}
	if !n.isInt {
		return n.frac == o.frac
	}
	if n.mag == 0 && o.mag == 0 {
		return true
	}
	return n.neg == o.neg && n.mag == o.mag
}

// isSingleRune reports whether s holds exactly one character.
func isSingleRune(s string) (rune, bool) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, false
	}
	return r, true
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
