package wampc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ugorji/go/codec"
)

// Serialization indicates the data serialization format used in a WAMP session
type Serialization int

const (
	// Use JSON-encoded strings as a payload.
	JSON Serialization = iota
	// Use msgpack-encoded strings as a payload.
	MSGPACK
	// Use CBOR-encoded strings as a payload.
	CBOR
)

func (s Serialization) String() string {
	switch s {
	case JSON:
		return "json"
	case MSGPACK:
		return "msgpack"
	case CBOR:
		return "cbor"
	}
	return fmt.Sprintf("Serialization(%d)", int(s))
}

// subprotocol is the WebSocket subprotocol that announces s.
func (s Serialization) subprotocol() string { return "wamp.2." + s.String() }

// binary reports whether s is sent in binary frames.
func (s Serialization) binary() bool { return s != JSON }

// ParseSerialization accepts "json", "msgpack" or "cbor".
func ParseSerialization(name string) (Serialization, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MSGPACK, nil
	case "cbor":
		return CBOR, nil
	}
	return 0, fmt.Errorf("unsupported serialization: %q", name)
}

// NewSerializer returns the Serializer for s.
func NewSerializer(s Serialization) (Serializer, error) {
	switch s {
	case JSON:
		return new(JSONSerializer), nil
	case MSGPACK:
		return new(MessagePackSerializer), nil
	case CBOR:
		return new(CBORSerializer), nil
	}
	return nil, fmt.Errorf("unsupported serialization: %v", s)
}

// Serializer is the interface implemented by an object that can serialize and
// deserialize WAMP messages
type Serializer interface {
	Serialize(Message) ([]byte, error)
	Deserialize([]byte) (Message, error)
}

func omitempty(f reflect.StructField) bool {
	return strings.Contains(f.Tag.Get("wamp"), "omitempty")
}

// convert the message into a list of values, omitting trailing empty values
func toList(msg Message, jsonMode bool) []interface{} {
	val := reflect.ValueOf(msg).Elem()
	typ := val.Type()

	// iterate backwards until a non-empty or non-"omitempty" field is found
	last := typ.NumField() - 1
	for ; last >= 0; last-- {
		if !omitempty(typ.Field(last)) || val.Field(last).Len() > 0 {
			break
		}
	}

	ret := make([]interface{}, 0, last+2)
	ret = append(ret, int(msg.MessageType()))
	for i := 0; i <= last; i++ {
		f := val.Field(i)
		switch f.Kind() {
		case reflect.Map:
			if f.IsNil() {
				ret = append(ret, map[string]interface{}{})
			} else {
				ret = append(ret, toWire(f.Interface(), jsonMode))
			}
		case reflect.Slice:
			if f.IsNil() {
				ret = append(ret, []interface{}{})
			} else {
				ret = append(ret, toWire(f.Interface(), jsonMode))
			}
		case reflect.Int:
			ret = append(ret, f.Int())
		case reflect.Uint, reflect.Uint64:
			ret = append(ret, f.Uint())
		default:
			ret = append(ret, f.Interface())
		}
	}
	return ret
}

// toWire replaces Values with their wire form and, for JSON, raw bytes with
// BinaryData.
func toWire(x interface{}, jsonMode bool) interface{} {
	switch t := x.(type) {
	case Value:
		return toWire(t.Interface(), jsonMode)
	case []Value:
		l := make([]interface{}, len(t))
		for i := range t {
			l[i] = toWire(t[i].Interface(), jsonMode)
		}
		return l
	case map[string]Value:
		m := make(map[string]interface{}, len(t))
		for k, v := range t {
			m[k] = toWire(v.Interface(), jsonMode)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(t))
		for i := range t {
			l[i] = toWire(t[i], jsonMode)
		}
		return l
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, v := range t {
			m[k] = toWire(v, jsonMode)
		}
		return m
	case []byte:
		if jsonMode {
			return BinaryData(t)
		}
	}
	return x
}

// applies a list of values from a WAMP message to a message type
func apply(arr []interface{}) (Message, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("invalid message: empty list")
	}
	code, ok := asInt64(arr[0])
	if !ok {
		return nil, fmt.Errorf("unsupported message format: type code is %T", arr[0])
	}
	msgType := MessageType(code)
	msg := msgType.New()
	if msg == nil {
		return nil, fmt.Errorf("unsupported message type: %d", code)
	}

	val := reflect.ValueOf(msg).Elem()
	typ := val.Type()
	required := 0
	for i := 0; i < typ.NumField(); i++ {
		if !omitempty(typ.Field(i)) {
			required++
		}
	}
	if len(arr)-1 < required {
		return nil, fmt.Errorf("%s message has %d fields, want at least %d", msgType, len(arr)-1, required)
	}

	for i := 0; i < typ.NumField() && i+1 < len(arr); i++ {
		if err := setField(val.Field(i), arr[i+1]); err != nil {
			return nil, fmt.Errorf("%s message format error: field %d (%s): %v", msgType, i+1, typ.Field(i).Name, err)
		}
	}
	return msg, nil
}

func setField(f reflect.Value, v interface{}) error {
	if v == nil {
		return nil
	}
	ok := false
	switch f.Kind() {
	case reflect.Uint, reflect.Uint64:
		var n uint64
		if n, ok = asUint64(v); ok {
			f.SetUint(n)
		}
	case reflect.Int:
		var n int64
		if n, ok = asInt64(v); ok {
			f.SetInt(n)
		}
	case reflect.String:
		var s string
		if s, ok = v.(string); ok {
			f.SetString(s)
		}
	case reflect.Map:
		var m map[string]interface{}
		if m, ok = v.(map[string]interface{}); ok {
			f.Set(reflect.ValueOf(m))
		}
	case reflect.Slice:
		var l []interface{}
		if l, ok = v.([]interface{}); ok {
			f.Set(reflect.ValueOf(l))
		}
	}
	if !ok {
		return fmt.Errorf("got %T, expected %s", v, f.Type())
	}
	return nil
}

// normalize rewrites a freshly decoded value so that every serializer hands
// the same shapes to apply: int64/uint64/float64 numbers, string-keyed maps,
// []interface{} lists and []byte for binary strings.
func normalize(x interface{}, jsonMode bool) interface{} {
	switch t := x.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			if u, err := strconv.ParseUint(s, 10, 64); err == nil {
				return u
			}
		}
		f, _ := t.Float64()
		return f
	case string:
		if jsonMode && strings.HasPrefix(t, "\x00") {
			if b, err := base64.StdEncoding.DecodeString(t[1:]); err == nil {
				return b
			}
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = normalize(t[i], jsonMode)
		}
		return t
	case map[string]interface{}:
		for k, v := range t {
			t[k] = normalize(v, jsonMode)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, v := range t {
			var key string
			switch kt := k.(type) {
			case string:
				key = kt
			case []byte:
				key = string(kt)
			default:
				key = fmt.Sprint(kt)
			}
			m[key] = normalize(v, jsonMode)
		}
		return m
	case float32:
		return float64(t)
	}
	return x
}

// JSONSerializer is an implementation of Serializer that handles serializing
// and deserializing JSON encoded payloads.
//
// Binary values ([]byte, BinaryData, Bytes) are sent as WAMP binary strings
// and come back as []byte.
type JSONSerializer struct {
}

// Serialize marshals the message into a JSON array.
func (s *JSONSerializer) Serialize(msg Message) ([]byte, error) {
	b, err := json.Marshal(toList(msg, true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// Deserialize unmarshals a JSON array into a message. Integers are kept
// exact instead of passing through float64.
func (s *JSONSerializer) Deserialize(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var arr []interface{}
	if err := dec.Decode(&arr); err != nil {
		return nil, err
	}
	for i := range arr {
		arr[i] = normalize(arr[i], true)
	}
	return apply(arr)
}

func newMsgpackHandle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.WriteExt = true
	h.SignedInteger = true
	h.Canonical = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

func newCborHandle() *codec.CborHandle {
	h := new(codec.CborHandle)
	h.SignedInteger = true
	h.Canonical = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

var (
	msgpackHandle = newMsgpackHandle()
	cborHandle    = newCborHandle()
)

func codecSerialize(msg Message, h codec.Handle) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, h).Encode(toList(msg, false)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

func codecDeserialize(data []byte, h codec.Handle) (Message, error) {
	var arr []interface{}
	if err := codec.NewDecoderBytes(data, h).Decode(&arr); err != nil {
		return nil, err
	}
	for i := range arr {
		arr[i] = normalize(arr[i], false)
	}
	return apply(arr)
}

// MessagePackSerializer is an implementation of Serializer that handles
// serializing and deserializing msgpack encoded payloads.
type MessagePackSerializer struct {
}

// Serialize encodes a Message into a msgpack payload.
func (s *MessagePackSerializer) Serialize(msg Message) ([]byte, error) {
	return codecSerialize(msg, msgpackHandle)
}

// Deserialize decodes a msgpack payload into a Message.
func (s *MessagePackSerializer) Deserialize(data []byte) (Message, error) {
	return codecDeserialize(data, msgpackHandle)
}

// CBORSerializer handles the wamp.2.cbor serialization.
type CBORSerializer struct {
}

func (s *CBORSerializer) Serialize(msg Message) ([]byte, error) {
	return codecSerialize(msg, cborHandle)
}

func (s *CBORSerializer) Deserialize(data []byte) (Message, error) {
	return codecDeserialize(data, cborHandle)
}

// BinaryData is a byte array that can be marshalled and unmarshalled according
// to WAMP specifications:
// https://wamp-proto.org/wamp_latest_ietf.html#name-binary-conversion-of-json-s
//
// This type *should* be used in types that will be marshalled as JSON.
type BinaryData []byte

func (b BinaryData) MarshalJSON() ([]byte, error) {
	s := base64.StdEncoding.EncodeToString([]byte(b))
	return json.Marshal("\x00" + s)
}

func (b *BinaryData) UnmarshalJSON(arr []byte) error {
	var s string
	if err := json.Unmarshal(arr, &s); err != nil {
		return err
	}
	if !strings.HasPrefix(s, "\x00") {
		return fmt.Errorf("not a binary string, doesn't start with a NUL: %q", s)
	}
	var err error
	*b, err = base64.StdEncoding.DecodeString(s[1:])
	return err
}
