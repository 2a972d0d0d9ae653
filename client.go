package wampc

import (
	"context"
	"fmt"
)

// A Client knows where a router is and how to join it. Each Connect opens a
// new transport and a new Session.
type Client struct {
	URL              string
	Realm            string
	Serialization    Serialization
	ConnectionConfig *ConnectionConfig

	opts []SessionOption
}

// NewClient returns a Client for the router at url and the given realm,
// speaking JSON. opts apply to every session it creates.
func NewClient(url, realm string, opts ...SessionOption) *Client {
	return &Client{
		URL:           url,
		Realm:         realm,
		Serialization: JSON,
		opts:          opts,
	}
}

// NewClientFromConfig returns a Client set up from cfg. opts are applied
// after the ones cfg implies.
func NewClientFromConfig(cfg Config, opts ...SessionOption) (*Client, error) {
	s, err := cfg.serialization()
	if err != nil {
		return nil, err
	}
	return &Client{
		URL:              cfg.URL,
		Realm:            cfg.Realm,
		Serialization:    s,
		ConnectionConfig: cfg.ConnectionConfig(),
		opts:             append(cfg.SessionOptions(), opts...),
	}, nil
}

// Connect dials the router, creates a session and joins the realm. The URL
// is checked before any I/O; a failed join closes the connection.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if c.Realm == "" {
		return nil, fmt.Errorf("wampc: no realm given")
	}
	t, err := Dial(ctx, c.URL, c.Serialization, c.ConnectionConfig)
	if err != nil {
		return nil, err
	}
	sess := NewSession(t, c.opts...)
	if _, err := sess.Join(ctx, c.Realm); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}
