package wampc

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestJSONDeserialize(t *testing.T) {
	type test struct {
		packet string
		exp    Message
	}

	tests := []test{
		{
			`[1,"some.realm",{}]`,
			&Hello{"some.realm", make(map[string]interface{})},
		},
		{
			`[36,5512315355,4429313566,{},[1,"two",3.5]]`,
			&Event{Subscription: 5512315355, Publication: 4429313566, Details: map[string]interface{}{},
				Arguments: []interface{}{int64(1), "two", 3.5}},
		},
		{
			`[50,7814135,{},[],{"user":{"name":"alice","admin":true}}]`,
			&Result{Request: 7814135, Details: map[string]interface{}{}, Arguments: []interface{}{},
				ArgumentsKw: map[string]interface{}{"user": map[string]interface{}{"name": "alice", "admin": true}}},
		},
		{
			`[8,48,7814135,{},"wamp.error.no_such_procedure"]`,
			&Error{Type: CALL, Request: 7814135, Details: map[string]interface{}{}, Error: ErrNoSuchProcedure},
		},
		{
			`[2,18446744073709551615,{}]`,
			&Welcome{Id: 18446744073709551615, Details: map[string]interface{}{}},
		},
	}

	s := new(JSONSerializer)
	for _, tst := range tests {
		if msg, err := s.Deserialize([]byte(tst.packet)); err != nil {
			t.Errorf("Error parsing good packet: %s, %s", err, tst.packet)
		} else if msg.MessageType() != tst.exp.MessageType() {
			t.Errorf("Incorrect message type: %d != %d", msg.MessageType(), tst.exp.MessageType())
		} else if !reflect.DeepEqual(msg, tst.exp) {
			t.Errorf("%+v != %+v", msg, tst.exp)
		}
	}
}

func TestJSONSerialize(t *testing.T) {
	Convey("Serializing to JSON", t, func() {
		s := new(JSONSerializer)

		Convey("Should omit trailing empty payload fields", func() {
			b, err := s.Serialize(&Publish{Request: 1, Options: map[string]interface{}{}, Topic: "topic.a"})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `[16,1,{},"topic.a"]`)
		})

		Convey("Should keep empty args when kwargs are present", func() {
			b, err := s.Serialize(&Publish{Request: 1, Topic: "topic.a", ArgumentsKw: map[string]interface{}{"a": 1}})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `[16,1,{},"topic.a",[],{"a":1}]`)
		})

		Convey("Should send nil maps as empty dicts", func() {
			b, err := s.Serialize(&Subscribe{Request: 2, Topic: "topic.a"})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `[32,2,{},"topic.a"]`)
		})

		Convey("Should send Values in their wire form", func() {
			b, err := s.Serialize(&Publish{Request: 3, Topic: "t", Arguments: []interface{}{
				Int(1), Char('x'), List(String("a"), None()), Dict(map[string]Value{"k": Bool(true)}),
			}})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `[16,3,{},"t",[1,"x",["a",null],{"k":true}]]`)
		})

		Convey("Should send bytes as binary strings", func() {
			b, err := s.Serialize(&Publish{Request: 4, Topic: "t", Arguments: []interface{}{[]byte{1, 2}}})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `[16,4,{},"t",["\u0000AQI="]]`)

			msg, err := s.Deserialize(b)
			So(err, ShouldBeNil)
			So(msg.(*Publish).Arguments, ShouldResemble, []interface{}{[]byte{1, 2}})
		})

		Convey("Should fail for values JSON cannot hold", func() {
			_, err := s.Serialize(&Publish{Request: 5, Topic: "t", Arguments: []interface{}{make(chan int)}})
			So(errors.Is(err, ErrSerialization), ShouldBeTrue)
		})
	})
}

func TestSerializerRoundTrip(t *testing.T) {
	messages := []Message{
		&Hello{Realm: "realm1", Details: map[string]interface{}{
			"roles": map[string]interface{}{"subscriber": map[string]interface{}{}},
		}},
		&Publish{Request: 1, Options: map[string]interface{}{"acknowledge": true}, Topic: "topic.a",
			Arguments:   []interface{}{int64(1), "a", []byte{1, 2}, []interface{}{int64(-2)}, 1.5, nil},
			ArgumentsKw: map[string]interface{}{"k": map[string]interface{}{"nested": false}}},
		&Event{Subscription: 42, Publication: 7, Details: map[string]interface{}{}, Arguments: []interface{}{int64(1), int64(2), int64(3)}},
		&Call{Request: 9, Options: map[string]interface{}{"timeout": int64(1500)}, Procedure: "com.example.add"},
		&Error{Type: INVOCATION, Request: 3, Details: map[string]interface{}{}, Error: ErrRuntimeError,
			Arguments: []interface{}{"boom"}},
		&Goodbye{Details: map[string]interface{}{}, Reason: ErrCloseRealm},
	}

	for _, ser := range []Serialization{JSON, MSGPACK, CBOR} {
		Convey("Round-tripping messages with "+ser.String(), t, func() {
			s, err := NewSerializer(ser)
			So(err, ShouldBeNil)
			for _, msg := range messages {
				b, err := s.Serialize(msg)
				So(err, ShouldBeNil)
				out, err := s.Deserialize(b)
				So(err, ShouldBeNil)
				So(out, ShouldResemble, msg)
			}
		})
	}
}

func TestMsgpackBinaryAndStrings(t *testing.T) {
	Convey("MsgPack should keep bin and str apart", t, func() {
		s, err := NewSerializer(MSGPACK)
		So(err, ShouldBeNil)
		b, err := s.Serialize(&Publish{Request: 1, Topic: "t", Arguments: []interface{}{[]byte("ab"), "ab"}})
		So(err, ShouldBeNil)
		msg, err := s.Deserialize(b)
		So(err, ShouldBeNil)
		args := msg.(*Publish).Arguments
		So(args[0], ShouldResemble, []byte("ab"))
		So(args[1], ShouldEqual, "ab")
	})
}

func TestDeserializeErrors(t *testing.T) {
	Convey("Deserializing bad frames", t, func() {
		s := new(JSONSerializer)
		bad := []string{
			`not json`,
			`{"type":1}`,
			`[]`,
			`["hello"]`,
			`[999,1,2]`,
			`[1,"realm"]`,
			`[1,5,{}]`,
			`[36,-1,2,{}]`,
		}
		for _, packet := range bad {
			_, err := s.Deserialize([]byte(packet))
			So(err, ShouldNotBeNil)
		}
	})
}

func TestApplySlice(t *testing.T) {
	const msgType = PUBLISH

	pubArgs := []interface{}{"hello", "world"}
	Convey("Deserializing into a message with a slice", t, func() {
		args := []interface{}{int64(msgType), int64(123), make(map[string]interface{}), "some.valid.topic", pubArgs}
		msg, err := apply(args)
		Convey("Should not error", func() {
			So(err, ShouldBeNil)
		})

		pubMsg, ok := msg.(*Publish)
		Convey("The message returned should be a publish message", func() {
			So(ok, ShouldBeTrue)
		})

		Convey("The message received should have the correct arguments", func() {
			So(len(pubMsg.Arguments), ShouldEqual, 2)
			So(pubMsg.Arguments[0], ShouldEqual, pubArgs[0])
			So(pubMsg.Arguments[1], ShouldEqual, pubArgs[1])
		})
	})
}

func TestBinaryData(t *testing.T) {
	Convey("BinaryData in JSON", t, func() {
		b, err := json.Marshal(BinaryData{1, 2})
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `"\u0000AQI="`)

		var out BinaryData
		So(json.Unmarshal(b, &out), ShouldBeNil)
		So([]byte(out), ShouldResemble, []byte{1, 2})

		So(json.Unmarshal([]byte(`"AQI="`), &out), ShouldNotBeNil)
	})
}

func TestParseSerialization(t *testing.T) {
	Convey("Parsing serialization names", t, func() {
		for name, want := range map[string]Serialization{"": JSON, "json": JSON, "MsgPack": MSGPACK, " cbor ": CBOR} {
			got, err := ParseSerialization(name)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
		_, err := ParseSerialization("xml")
		So(err, ShouldNotBeNil)
		So(MSGPACK.subprotocol(), ShouldEqual, "wamp.2.msgpack")
		So(JSON.binary(), ShouldBeFalse)
	})
}
