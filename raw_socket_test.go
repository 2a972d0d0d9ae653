package wampc

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestToLength(t *testing.T) {
	// exhaustive list of valid lengths
	exp := map[byte]int{
		0:  2 << 8,
		1:  2 << 9,
		2:  2 << 10,
		3:  2 << 11,
		4:  2 << 12,
		5:  2 << 13,
		6:  2 << 14,
		7:  2 << 15,
		8:  2 << 16,
		9:  2 << 17,
		10: 2 << 18,
		11: 2 << 19,
		12: 2 << 20,
		13: 2 << 21,
		14: 2 << 22,
		15: 2 << 23,
	}

	Convey("For every valid length value", t, func() {
		for b, v := range exp {
			So(toLength(b), ShouldEqual, v)
		}
	})
}

func TestLengthExponent(t *testing.T) {
	Convey("Picking the length exponent for a size limit", t, func() {
		So(lengthExponent(0), ShouldEqual, byte(0xf))
		So(lengthExponent(1), ShouldEqual, byte(0))
		So(lengthExponent(512), ShouldEqual, byte(0))
		So(lengthExponent(513), ShouldEqual, byte(1))
		So(lengthExponent(1<<24), ShouldEqual, byte(0xf))
		So(lengthExponent(1<<30), ShouldEqual, byte(0xf))
	})
}

func TestIntToBytes(t *testing.T) {
	Convey("When setting a number that fits in a byte", t, func() {
		val := 56
		arr := intToBytes(val)
		So(len(arr), ShouldEqual, 3)
		So(arr[0], ShouldEqual, byte(0))
		So(arr[1], ShouldEqual, byte(0))
		So(arr[2], ShouldEqual, byte(val))
	})

	Convey("When setting a number that fits in a 24-bit number", t, func() {
		val := 2 << 20
		arr := intToBytes(val)
		So(len(arr), ShouldEqual, 3)
		So(arr[0], ShouldEqual, byte(val>>16))
		So(arr[1], ShouldEqual, byte(0))
		So(arr[2], ShouldEqual, byte(0))
	})
}

func TestBytesToInt(t *testing.T) {
	Convey("When setting an array with only the low byte set", t, func() {
		arr := []byte{0, 0, 56}
		val := bytesToInt(arr)
		So(val, ShouldEqual, int(arr[2]))
	})
	Convey("When setting an array with only the high byte set", t, func() {
		arr := []byte{56, 0, 0}
		val := bytesToInt(arr)
		So(val, ShouldEqual, int(arr[0])<<16)
	})
}

// rawSocketRouter accepts one connection and hands it to serve after
// answering the handshake with reply.
func rawSocketRouter(t *testing.T, reply func(hs [4]byte) [4]byte, serve func(net.Conn)) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var hs [4]byte
		if _, err := io.ReadFull(conn, hs[:]); err != nil {
			return
		}
		out := reply(hs)
		if _, err := conn.Write(out[:]); err != nil {
			return
		}
		if serve != nil {
			serve(conn)
		}
	}()
	return "tcp://" + l.Addr().String()
}

func acceptAll(hs [4]byte) [4]byte {
	// announce 2**13 bytes, echo the serializer
	return [4]byte{magic, 4<<4 | hs[1]&0xf, 0, 0}
}

func readFrame(conn net.Conn) (byte, []byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, nil, err
	}
	buf := make([]byte, bytesToInt(header[1:]))
	_, err := io.ReadFull(conn, buf)
	return header[0], buf, err
}

func writeFrame(conn net.Conn, frameType byte, b []byte) error {
	arr := intToBytes(len(b))
	_, err := conn.Write(append([]byte{frameType, arr[0], arr[1], arr[2]}, b...))
	return err
}

func TestRawSocketHandshake(t *testing.T) {
	Convey("Dialing a RawSocket router", t, func() {
		handshakes := make(chan [4]byte, 1)
		frames := make(chan []byte, 10)
		url := rawSocketRouter(t,
			func(hs [4]byte) [4]byte {
				handshakes <- hs
				return acceptAll(hs)
			},
			func(conn net.Conn) {
				s := new(JSONSerializer)
				for {
					typ, b, err := readFrame(conn)
					if err != nil {
						return
					}
					frames <- append([]byte{typ}, b...)
					if typ != rawFrameMessage {
						continue
					}
					if _, err := s.Deserialize(b); err != nil {
						return
					}
					out, _ := s.Serialize(&Welcome{Id: 7, Details: map[string]interface{}{}})
					writeFrame(conn, rawFrameMessage, out)
					writeFrame(conn, rawFramePing, []byte("abc"))
				}
			})

		client, err := Dial(context.Background(), url, JSON, &ConnectionConfig{MaxMsgSize: 1024})
		So(err, ShouldBeNil)
		defer client.Close()

		hs := <-handshakes
		So(hs[0], ShouldEqual, byte(magic))
		So(hs[1]>>4, ShouldEqual, byte(1))
		So(hs[1]&0xf, ShouldEqual, byte(rawSocketJSON))

		Convey("Messages should be framed both ways", func() {
			So(client.Send(&Hello{Realm: testRealm, Details: map[string]interface{}{}}), ShouldBeNil)
			frame := <-frames
			So(frame[0], ShouldEqual, byte(rawFrameMessage))
			So(string(frame[1:]), ShouldStartWith, `[1,"`+testRealm+`"`)

			select {
			case msg := <-client.Receive():
				welcome, ok := msg.(*Welcome)
				So(ok, ShouldBeTrue)
				So(welcome.Id, ShouldEqual, ID(7))
			case <-time.After(time.Second):
				So("WELCOME", ShouldEqual, "received")
			}

			pong := <-frames
			So(pong[0], ShouldEqual, byte(rawFramePong))
			So(string(pong[1:]), ShouldEqual, "abc")
		})

		Convey("Messages over the router's limit should be refused locally", func() {
			err := client.Send(&Publish{Request: 1, Topic: "t", Arguments: []interface{}{strings.Repeat("x", 9000)}})
			So(errors.Is(err, ErrSerialization), ShouldBeTrue)
			So(client.Send(&Hello{Realm: testRealm, Details: map[string]interface{}{}}), ShouldBeNil)
		})
	})
}

func TestRawSocketHandshakeRefused(t *testing.T) {
	Convey("A router refusing the handshake", t, func() {
		url := rawSocketRouter(t, func([4]byte) [4]byte {
			// error code 0: serializer unsupported
			return [4]byte{magic, 0, 0, 0}
		}, nil)

		_, err := Dial(context.Background(), url, MSGPACK, nil)
		var terr *TransportError
		So(errors.As(err, &terr), ShouldBeTrue)
		So(terr.Op, ShouldEqual, "handshake")
		So(err.Error(), ShouldContainSubstring, "serializer unsupported")
	})

	Convey("A router answering with another serializer", t, func() {
		url := rawSocketRouter(t, func([4]byte) [4]byte {
			return [4]byte{magic, 4<<4 | rawSocketCBOR, 0, 0}
		}, nil)

		_, err := Dial(context.Background(), url, JSON, nil)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "serializer mismatch")
	})
}

func TestRawSocketRouterHangup(t *testing.T) {
	Convey("When the router hangs up", t, func() {
		url := rawSocketRouter(t, acceptAll, func(conn net.Conn) {})

		client, err := Dial(context.Background(), url, CBOR, nil)
		So(err, ShouldBeNil)
		defer client.Close()

		select {
		case _, ok := <-client.Receive():
			So(ok, ShouldBeFalse)
		case <-time.After(time.Second):
			So("receive channel", ShouldEqual, "closed")
		}
		So(client.(errorer).Err(), ShouldBeNil)
	})
}
