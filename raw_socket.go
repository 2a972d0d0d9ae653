package wampc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	magic = 0x7f
)

// serializer ids of the RawSocket handshake
const (
	rawSocketJSON    = 1
	rawSocketMsgpack = 2
	rawSocketCBOR    = 3
)

// frame types, in the low 3 bits of the frame header
const (
	rawFrameMessage = 0
	rawFramePing    = 1
	rawFramePong    = 2
)

var rawSocketSerializers = map[Serialization]byte{
	JSON:    rawSocketJSON,
	MSGPACK: rawSocketMsgpack,
	CBOR:    rawSocketCBOR,
}

type rawSocketPeer struct {
	serializer Serializer
	conn       net.Conn
	messages   chan Message
	// sendLimit is what the router accepts, recvLimit what we accept.
	sendLimit int
	recvLimit int

	writeMu   sync.Mutex
	closing   chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
	*ConnectionConfig
}

func intToBytes(i int) [3]byte {
	return [3]byte{
		byte((i >> 16) & 0xff),
		byte((i >> 8) & 0xff),
		byte(i & 0xff),
	}
}

func bytesToInt(arr []byte) (val int) {
	shift := uint(8 * (len(arr) - 1))
	for _, b := range arr {
		val |= int(uint(b) << shift)
		shift -= 8
	}
	return
}

// toLength converts a 4-bit length exponent to a frame size limit. Limits
// range from 2**9 to 2**24.
func toLength(b byte) int {
	return (2 << 8) << b
}

// lengthExponent picks the smallest exponent whose limit covers max. Zero
// or oversized values ask for the largest frames.
func lengthExponent(max int64) byte {
	if max <= 0 {
		return 0xf
	}
	for b := byte(0); b < 0xf; b++ {
		if int64(toLength(b)) >= max {
			return b
		}
	}
	return 0xf
}

func dialRawSocket(ctx context.Context, network, addr string, useTLS bool, s Serialization, cfg *ConnectionConfig) (Transport, error) {
	serializer, err := NewSerializer(s)
	if err != nil {
		return nil, err
	}
	target := network + "://" + addr

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", URL: target, Err: err}
	}
	if useTLS {
		tlscfg := cfg.TLSConfig
		if tlscfg == nil {
			tlscfg = &tls.Config{}
		}
		if tlscfg.ServerName == "" {
			tlscfg = tlscfg.Clone()
			tlscfg.ServerName, _, _ = net.SplitHostPort(addr)
		}
		tconn := tls.Client(conn, tlscfg)
		if err := tconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &TransportError{Op: "tls handshake", URL: target, Err: err}
		}
		conn = tconn
	}

	ep := newRawSocketPeer(conn, serializer, cfg)
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := ep.handshakeClient(rawSocketSerializers[s], lengthExponent(cfg.MaxMsgSize)); err != nil {
		conn.Close()
		return nil, &TransportError{Op: "handshake", URL: target, Err: err}
	}
	conn.SetDeadline(time.Time{})

	go ep.handleMessages()
	if ep.PingInterval > 0 {
		go ep.pinging()
	}
	return ep, nil
}

func newRawSocketPeer(conn net.Conn, serializer Serializer, cfg *ConnectionConfig) *rawSocketPeer {
	if cfg == nil {
		cfg = &ConnectionConfig{}
	}
	return &rawSocketPeer{
		conn:             conn,
		serializer:       serializer,
		messages:         make(chan Message, 100),
		closing:          make(chan struct{}),
		ConnectionConfig: cfg,
	}
}

func (ep *rawSocketPeer) Send(msg Message) error {
	b, err := ep.serializer.Serialize(msg)
	if err != nil {
		return err
	}
	if len(b) > ep.sendLimit {
		return fmt.Errorf("%w: message too big: %d > %d", ErrSerialization, len(b), ep.sendLimit)
	}
	if err := ep.writeFrame(rawFrameMessage, b); err != nil {
		ep.fail(&TransportError{Op: "write", Err: err})
		return ErrTransportClosed
	}
	return nil
}

// writeFrame writes header and body in one call so concurrent senders never
// interleave.
func (ep *rawSocketPeer) writeFrame(frameType byte, b []byte) error {
	select {
	case <-ep.closing:
		return ErrTransportClosed
	default:
	}
	arr := intToBytes(len(b))
	frame := make([]byte, 0, 4+len(b))
	frame = append(frame, frameType, arr[0], arr[1], arr[2])
	frame = append(frame, b...)

	ep.writeMu.Lock()
	defer ep.writeMu.Unlock()
	ep.conn.SetWriteDeadline(time.Now().Add(ep.writeTimeout()))
	_, err := ep.conn.Write(frame)
	return err
}

func (ep *rawSocketPeer) Receive() <-chan Message {
	return ep.messages
}

func (ep *rawSocketPeer) Close() error {
	var err error
	ep.closeOnce.Do(func() {
		close(ep.closing)
		err = ep.conn.Close()
	})
	return err
}

func (ep *rawSocketPeer) Err() error {
	ep.errMu.Lock()
	defer ep.errMu.Unlock()
	return ep.err
}

func (ep *rawSocketPeer) isClosed() bool {
	select {
	case <-ep.closing:
		return true
	default:
		return false
	}
}

func (ep *rawSocketPeer) fail(err error) {
	if ep.isClosed() {
		return
	}
	ep.errMu.Lock()
	if ep.err == nil {
		ep.err = err
	}
	ep.errMu.Unlock()
	ep.conn.Close()
}

func (ep *rawSocketPeer) handleMessages() {
	defer close(ep.messages)
	for {
		if ep.IdleTimeout > 0 {
			ep.conn.SetReadDeadline(time.Now().Add(ep.IdleTimeout))
		}
		var header [4]byte
		if _, err := io.ReadFull(ep.conn, header[:]); err != nil {
			if !ep.isClosed() && !errors.Is(err, io.EOF) {
				ep.fail(&TransportError{Op: "read", Err: err})
			}
			ep.conn.Close()
			return
		}

		length := bytesToInt(header[1:])
		if length > ep.recvLimit {
			ep.fail(&TransportError{Op: "read", Err: fmt.Errorf("frame too big: %d > %d", length, ep.recvLimit)})
			return
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(ep.conn, buf); err != nil {
			ep.fail(&TransportError{Op: "read", Err: err})
			return
		}

		switch header[0] & 0x7 {
		case rawFrameMessage:
			msg, err := ep.serializer.Deserialize(buf)
			if err != nil {
				log.Warn().Err(err).Msg("error deserializing peer message")
				continue
			}
			select {
			case ep.messages <- msg:
			case <-ep.closing:
				return
			}
		case rawFramePing:
			if err := ep.writeFrame(rawFramePong, buf); err != nil {
				ep.fail(&TransportError{Op: "pong", Err: err})
				return
			}
		case rawFramePong:
			log.Debug().Int("length", length).Msg("pong")
		default:
			ep.fail(&TransportError{Op: "read", Err: fmt.Errorf("reserved frame type %d", header[0]&0x7)})
			return
		}
	}
}

func (ep *rawSocketPeer) pinging() {
	ticker := time.NewTicker(ep.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ep.writeFrame(rawFramePing, nil); err != nil {
				ep.fail(&TransportError{Op: "ping", Err: err})
				return
			}
		case <-ep.closing:
			return
		}
	}
}

func (ep *rawSocketPeer) handshakeClient(serializer, length byte) error {
	if _, err := ep.conn.Write([]byte{magic, length<<4 | serializer, 0, 0}); err != nil {
		return err
	}
	var buf [4]byte
	if _, err := io.ReadFull(ep.conn, buf[:]); err != nil {
		return err
	}
	if buf[0] != magic {
		return errors.New("unknown protocol: first byte received not the WAMP magic value")
	}
	if buf[1]&0xf == 0 {
		errCode := buf[1] >> 4
		switch errCode {
		case 0:
			return errors.New("serializer unsupported")
		case 1:
			return errors.New("maximum message length unsupported")
		case 2:
			return errors.New("use of reserved bits (unsupported feature)")
		case 3:
			return errors.New("maximum connection count reached")
		default:
			return fmt.Errorf("unknown error: %d", errCode)
		}
	}
	if buf[1]&0xf != serializer {
		return errors.New("serializer mismatch: server responded with different serializer than requested")
	}
	// the router may announce a smaller limit than ours; each side caps
	// what it receives
	ep.sendLimit = toLength(buf[1] >> 4)
	ep.recvLimit = toLength(length)
	return nil
}
