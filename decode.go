package wampc

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// DecodeError reports why part of a payload could not be decoded into the
// requested Go value. It wraps ErrMissingField or ErrTypeMismatch.
type DecodeError struct {
	// Path locates the offending value, e.g. "args[2]" or "kwargs.user.name".
	Path string
	Kind error
	Want reflect.Type
	Got  interface{}
}

func (e *DecodeError) Error() string {
	if e.Kind == ErrMissingField {
		return fmt.Sprintf("wampc: decode %s: missing field", e.Path)
	}
	if e.Want == nil {
		return fmt.Sprintf("wampc: decode %s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("wampc: decode %s: %v: cannot use %T as %s", e.Path, e.Kind, e.Got, e.Want)
}

func (e *DecodeError) Unwrap() error { return e.Kind }

var valueType = reflect.TypeOf(Value{})

func mismatch(path string, want reflect.Type, got interface{}) error {
	return &DecodeError{Path: path, Kind: ErrTypeMismatch, Want: want, Got: got}
}

// decodeInto decodes src into the value pointed to by target.
func decodeInto(target interface{}, src interface{}, path string) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &DecodeError{Path: path, Kind: fmt.Errorf("%w: target must be a non-nil pointer, got %T", ErrTypeMismatch, target)}
	}
	return assign(rv.Elem(), src, path)
}

// assign stores src into dst, converting types as necessary
func assign(dst reflect.Value, src interface{}, path string) error {
	if v, ok := src.(Value); ok {
		if dst.Type() == valueType {
			dst.Set(reflect.ValueOf(v))
			return nil
		}
		src = v.Interface()
	}
	if dst.Type() == valueType {
		dst.Set(reflect.ValueOf(ValueOf(src)))
		return nil
	}

	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	switch dst.Kind() {
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assign(dst.Elem(), src, path)

	case reflect.Interface:
		sv := reflect.ValueOf(src)
		if !sv.Type().AssignableTo(dst.Type()) {
			return mismatch(path, dst.Type(), src)
		}
		dst.Set(sv)
		return nil

	case reflect.Bool:
		b, ok := src.(bool)
		if !ok {
			return mismatch(path, dst.Type(), src)
		}
		dst.SetBool(b)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := asInt64(src)
		if !ok && dst.Kind() == reflect.Int32 {
			// a rune target accepts a one-character string
			if s, isStr := src.(string); isStr {
				var r rune
				if r, ok = isSingleRune(s); ok {
					n = int64(r)
				}
			}
		}
		if !ok || dst.OverflowInt(n) {
			return mismatch(path, dst.Type(), src)
		}
		dst.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := asUint64(src)
		if !ok || dst.OverflowUint(n) {
			return mismatch(path, dst.Type(), src)
		}
		dst.SetUint(n)
		return nil

	case reflect.Float32, reflect.Float64:
		f, ok := asFloat64(src)
		if !ok || dst.OverflowFloat(f) {
			return mismatch(path, dst.Type(), src)
		}
		dst.SetFloat(f)
		return nil

	case reflect.String:
		s, ok := src.(string)
		if !ok {
			sv := reflect.ValueOf(src)
			if sv.Kind() != reflect.String {
				return mismatch(path, dst.Type(), src)
			}
			s = sv.String()
		}
		dst.SetString(s)
		return nil

	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			switch b := src.(type) {
			case []byte:
				dst.SetBytes(append([]byte(nil), b...))
				return nil
			case BinaryData:
				dst.SetBytes(append([]byte(nil), b...))
				return nil
			}
		}
		return assignSlice(dst, src, path)

	case reflect.Array:
		sv := reflect.ValueOf(src)
		if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
			return mismatch(path, dst.Type(), src)
		}
		if sv.Len() != dst.Len() {
			return &DecodeError{Path: path, Kind: ErrTypeMismatch, Want: dst.Type(), Got: src}
		}
		for i := 0; i < sv.Len(); i++ {
			if err := assign(dst.Index(i), sv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		return assignMap(dst, src, path)

	case reflect.Struct:
		sv := reflect.ValueOf(src)
		switch sv.Kind() {
		case reflect.Map:
			return assignStructFromMap(dst, sv, path)
		case reflect.Slice, reflect.Array:
			return assignStructFromList(dst, sv, path)
		}
		if sv.Type().AssignableTo(dst.Type()) {
			dst.Set(sv)
			return nil
		}
		return mismatch(path, dst.Type(), src)
	}
	return mismatch(path, dst.Type(), src)
}

// re-initializes dst and moves all values from src to dst, converting types as necessary
func assignSlice(dst reflect.Value, src interface{}, path string) error {
	sv := reflect.ValueOf(src)
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		return mismatch(path, dst.Type(), src)
	}
	out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := assign(out.Index(i), sv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

// re-initializes dst and moves all key/value pairs into dst, converting types as necessary
func assignMap(dst reflect.Value, src interface{}, path string) error {
	sv := reflect.ValueOf(src)
	if sv.Kind() != reflect.Map || sv.Type().Key().Kind() != reflect.String {
		return mismatch(path, dst.Type(), src)
	}
	if dst.Type().Key().Kind() != reflect.String {
		return &DecodeError{Path: path, Kind: fmt.Errorf("%w: map key must be a string kind, got %s", ErrTypeMismatch, dst.Type().Key())}
	}
	out := reflect.MakeMapWithSize(dst.Type(), sv.Len())
	elemType := dst.Type().Elem()
	iter := sv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		elem := reflect.New(elemType).Elem()
		if err := assign(elem, iter.Value().Interface(), path+"."+k); err != nil {
			return err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
	}
	dst.Set(out)
	return nil
}

type fieldInfo struct {
	index    int
	name     string
	optional bool
}

// structFields lists the exported fields of t with the dict key each one
// reads from. A `wamp:"name,omitempty"` tag wins over a `json` tag, which wins
// over the field name; "-" skips the field. Fields are required unless tagged
// omitempty or of pointer type.
func structFields(t reflect.Type) []fieldInfo {
	fields := make([]fieldInfo, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		tag, ok := f.Tag.Lookup("wamp")
		if !ok {
			tag = f.Tag.Get("json")
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields = append(fields, fieldInfo{
			index:    i,
			name:     name,
			optional: strings.Contains(opts, "omitempty") || f.Type.Kind() == reflect.Ptr,
		})
	}
	return fields
}

func assignStructFromMap(dst reflect.Value, sv reflect.Value, path string) error {
	if sv.Type().Key().Kind() != reflect.String {
		return mismatch(path, dst.Type(), sv.Interface())
	}
	for _, f := range structFields(dst.Type()) {
		fpath := path + "." + f.name
		v := sv.MapIndex(reflect.ValueOf(f.name).Convert(sv.Type().Key()))
		if !v.IsValid() {
			v = lookupFold(sv, f.name)
		}
		if !v.IsValid() {
			if f.optional {
				continue
			}
			return &DecodeError{Path: fpath, Kind: ErrMissingField, Want: dst.Field(f.index).Type()}
		}
		if err := assign(dst.Field(f.index), v.Interface(), fpath); err != nil {
			return err
		}
	}
	return nil
}

func lookupFold(m reflect.Value, name string) reflect.Value {
	iter := m.MapRange()
	for iter.Next() {
		if strings.EqualFold(iter.Key().String(), name) {
			return iter.Value()
		}
	}
	return reflect.Value{}
}

// assignStructFromList fills the fields of dst in declaration order.
func assignStructFromList(dst reflect.Value, sv reflect.Value, path string) error {
	for i, f := range structFields(dst.Type()) {
		fpath := fmt.Sprintf("%s[%d]", path, i)
		if i >= sv.Len() {
			if f.optional {
				continue
			}
			return &DecodeError{Path: fpath, Kind: ErrMissingField, Want: dst.Field(f.index).Type()}
		}
		if err := assign(dst.Field(f.index), sv.Index(i).Interface(), fpath); err != nil {
			return err
		}
	}
	return nil
}

func asInt64(v interface{}) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func asUint64(v interface{}) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
