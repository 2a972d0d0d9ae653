package wampc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Transport is the message-oriented connection a Session runs over. It owns
// both the socket and the serializer.
type Transport interface {
	// Send serializes msg and queues it for writing. Messages are written in
	// the order Send is called. Send may be called from any goroutine.
	Send(Message) error

	// Receive returns a channel of messages coming from the router, in wire
	// order. The channel is closed when the connection ends.
	Receive() <-chan Message

	// Close closes the connection and, eventually, the Receive channel.
	// Multiple calls to Close have no effect.
	Close() error
}

// errorer is implemented by transports that can tell why they stopped.
type errorer interface {
	Err() error
}

// ConnectionConfig tunes the socket underneath a Transport. The zero value
// is usable.
type ConnectionConfig struct {
	// MaxMsgSize limits the size of an incoming message. 0 means no limit
	// for WebSocket and the largest frame (16 MiB) for RawSocket.
	MaxMsgSize int64
	// IdleTimeout closes the connection when nothing is read for this long.
	IdleTimeout time.Duration
	// PingInterval sends a keepalive ping at this interval. 0 disables it.
	PingInterval time.Duration
	// WriteTimeout bounds a single frame write and how long Send waits for
	// room in the write queue.
	WriteTimeout time.Duration
	// TLSConfig is used for wss:// and rss:// targets.
	TLSConfig *tls.Config
	// Origin is sent as the Origin header of the WebSocket handshake.
	Origin string
}

const defaultWriteTimeout = 10 * time.Second

func (c *ConnectionConfig) writeTimeout() time.Duration {
	if c == nil || c.WriteTimeout <= 0 {
		return defaultWriteTimeout
	}
	return c.WriteTimeout
}

// Dial connects to a router and returns a Transport speaking serialization s.
//
// Supported schemes: ws, wss (WebSocket); tcp, rs, rss (RawSocket over TCP,
// rss with TLS); unix (RawSocket over a unix domain socket, path in the URL
// path). A malformed URL or unknown scheme fails with ErrInvalidURL before
// any I/O.
func Dial(ctx context.Context, rawurl string, s Serialization, cfg *ConnectionConfig) (Transport, error) {
	u, err := parseURL(rawurl)
	if err != nil {
		return nil, err
	}
	if _, err := NewSerializer(s); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &ConnectionConfig{}
	}
	switch u.Scheme {
	case "ws", "wss":
		return dialWebsocket(ctx, u, s, cfg)
	case "tcp", "rs":
		return dialRawSocket(ctx, "tcp", u.Host, false, s, cfg)
	case "rss":
		return dialRawSocket(ctx, "tcp", u.Host, true, s, cfg)
	case "unix":
		return dialRawSocket(ctx, "unix", u.Path, false, s, cfg)
	}
	return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
}

// parseURL validates a connection target without touching the network.
func parseURL(rawurl string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawurl))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "ws", "wss", "tcp", "rs", "rss":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawurl)
		}
	case "unix":
		if u.Path == "" {
			return nil, fmt.Errorf("%w: %q has no socket path", ErrInvalidURL, rawurl)
		}
	case "":
		return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, rawurl)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return u, nil
}
