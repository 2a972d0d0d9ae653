package wampc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type websocketPeer struct {
	conn        *websocket.Conn
	serializer  Serializer
	sendMsgs    chan []byte
	messages    chan Message
	payloadType int
	mutex       sync.Mutex
	inSending   chan struct{}
	closing     chan struct{}
	closeOnce   sync.Once
	errMu       sync.Mutex
	err         error
	*ConnectionConfig
}

func dialWebsocket(ctx context.Context, u *url.URL, s Serialization, cfg *ConnectionConfig) (Transport, error) {
	serializer, err := NewSerializer(s)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Subprotocols:     []string{s.subprotocol()},
		TLSClientConfig:  cfg.TLSConfig,
		HandshakeTimeout: 45 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	var header http.Header
	if cfg.Origin != "" {
		header = http.Header{"Origin": {cfg.Origin}}
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, &TransportError{Op: "dial", URL: u.String(), Err: err}
	}
	if conn.Subprotocol() != s.subprotocol() {
		conn.Close()
		return nil, &TransportError{Op: "dial", URL: u.String(),
			Err: fmt.Errorf("router did not accept subprotocol %s", s.subprotocol())}
	}

	payloadType := websocket.TextMessage
	if s.binary() {
		payloadType = websocket.BinaryMessage
	}
	return newWebsocketPeer(conn, serializer, payloadType, cfg), nil
}

func newWebsocketPeer(conn *websocket.Conn, serializer Serializer, payloadType int, cfg *ConnectionConfig) *websocketPeer {
	if cfg == nil {
		cfg = &ConnectionConfig{}
	}
	ep := &websocketPeer{
		conn:             conn,
		sendMsgs:         make(chan []byte, 16),
		messages:         make(chan Message, 100),
		serializer:       serializer,
		payloadType:      payloadType,
		inSending:        make(chan struct{}),
		closing:          make(chan struct{}),
		ConnectionConfig: cfg,
	}
	go ep.sending()
	go ep.run()
	return ep
}

// Send serializes msg on the caller's goroutine, so a message that cannot be
// encoded is reported to its sender and never reaches the write queue.
func (ep *websocketPeer) Send(msg Message) error {
	b, err := ep.serializer.Serialize(msg)
	if err != nil {
		return err
	}
	timer := time.NewTimer(ep.writeTimeout())
	defer timer.Stop()
	select {
	case ep.sendMsgs <- b:
		return nil
	case <-timer.C:
		log.Warn().Stringer("type", msg.MessageType()).Msg(ErrSendTimeout.Error())
		ep.fail(ErrSendTimeout)
		return ErrSendTimeout
	case <-ep.inSending:
		return ErrTransportClosed
	case <-ep.closing:
		return ErrTransportClosed
	}
}

func (ep *websocketPeer) Receive() <-chan Message {
	return ep.messages
}

// Err returns why the connection ended, or nil after an orderly close.
func (ep *websocketPeer) Err() error {
	ep.errMu.Lock()
	defer ep.errMu.Unlock()
	return ep.err
}

func (ep *websocketPeer) setErr(err error) {
	ep.errMu.Lock()
	defer ep.errMu.Unlock()
	if ep.err == nil {
		ep.err = err
	}
}

func (ep *websocketPeer) isClosed() bool {
	select {
	case <-ep.closing:
		return true
	default:
		return false
	}
}

// fail tears the socket down after an I/O error without waiting on the
// writer, which may be the caller.
func (ep *websocketPeer) fail(err error) {
	if ep.isClosed() {
		return
	}
	ep.setErr(err)
	ep.conn.Close()
}

func (ep *websocketPeer) Close() error {
	var err error
	ep.closeOnce.Do(func() {
		close(ep.closing)
		<-ep.inSending

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "goodbye")
		if werr := ep.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(5*time.Second)); werr != nil {
			log.Debug().Err(werr).Msg("error sending close message")
		}
		err = ep.conn.Close()
	})
	return err
}

func (ep *websocketPeer) updateReadDeadline() {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	if ep.IdleTimeout > 0 {
		ep.conn.SetReadDeadline(time.Now().Add(ep.IdleTimeout))
	}
}

func (ep *websocketPeer) run() {
	defer close(ep.messages)

	if ep.MaxMsgSize > 0 {
		ep.conn.SetReadLimit(ep.MaxMsgSize)
	}
	ep.conn.SetPongHandler(func(v string) error {
		log.Debug().Str("data", v).Msg("pong")
		ep.updateReadDeadline()
		return nil
	})
	ep.conn.SetPingHandler(func(v string) error {
		log.Debug().Str("data", v).Msg("ping")
		ep.updateReadDeadline()
		err := ep.conn.WriteControl(websocket.PongMessage, []byte(v), time.Now().Add(ep.writeTimeout()))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		ep.updateReadDeadline()
		_, b, err := ep.conn.ReadMessage()
		if err != nil {
			switch {
			case ep.isClosed():
				log.Debug().Msg("peer connection closed")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				log.Debug().Err(err).Msg("router closed the connection")
				ep.conn.Close()
			default:
				log.Debug().Err(err).Msg("error reading from peer")
				ep.setErr(&TransportError{Op: "read", Err: err})
				ep.conn.Close()
			}
			return
		}
		msg, err := ep.serializer.Deserialize(b)
		if err != nil {
			log.Warn().Err(err).Msg("error deserializing peer message")
			continue
		}
		select {
		case ep.messages <- msg:
		case <-ep.closing:
			return
		}
	}
}

func (ep *websocketPeer) sending() {
	var tick <-chan time.Time
	if ep.PingInterval > 0 {
		ticker := time.NewTicker(ep.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer close(ep.inSending)

	for {
		select {
		case b := <-ep.sendMsgs:
			if err := ep.doSend(b); err != nil {
				ep.fail(&TransportError{Op: "write", Err: err})
				return
			}
		case <-tick:
			if err := ep.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ep.writeTimeout())); err != nil {
				log.Debug().Err(err).Msg("error sending ping message")
				ep.fail(&TransportError{Op: "ping", Err: err})
				return
			}
		case <-ep.closing:
			// flush what was queued before Close, GOODBYE included
			for {
				select {
				case b := <-ep.sendMsgs:
					if err := ep.doSend(b); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (ep *websocketPeer) doSend(b []byte) error {
	ep.conn.SetWriteDeadline(time.Now().Add(ep.writeTimeout()))
	if err := ep.conn.WriteMessage(ep.payloadType, b); err != nil {
		log.Debug().Err(err).Msg("error writing message")
		return err
	}
	return nil
}
