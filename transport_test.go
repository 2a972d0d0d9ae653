package wampc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialInvalidURL(t *testing.T) {
	bad := []string{
		"",
		"localhost:8080",
		"http://localhost:8080/ws",
		"ws://",
		"ws:///path",
		"tcp://",
		"unix://",
		"ws://[::1",
	}
	for _, rawurl := range bad {
		_, err := Dial(context.Background(), rawurl, JSON, nil)
		assert.ErrorIs(t, err, ErrInvalidURL, "%q", rawurl)
	}
}

func TestParseURL(t *testing.T) {
	for rawurl, scheme := range map[string]string{
		"ws://localhost:8080/ws":  "ws",
		" WSS://example.com/ws ":  "wss",
		"tcp://127.0.0.1:8081":    "tcp",
		"rs://127.0.0.1:8081":     "rs",
		"rss://example.com:443":   "rss",
		"unix:///tmp/router.sock": "unix",
	} {
		u, err := parseURL(rawurl)
		require.NoError(t, err, rawurl)
		assert.Equal(t, scheme, u.Scheme)
	}
}

func TestDialUnsupportedSerialization(t *testing.T) {
	_, err := Dial(context.Background(), "ws://localhost:1/ws", Serialization(9), nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidURL)
}

func TestConnectionConfigDefaults(t *testing.T) {
	var cfg *ConnectionConfig
	assert.Equal(t, defaultWriteTimeout, cfg.writeTimeout())
	assert.Equal(t, defaultWriteTimeout, (&ConnectionConfig{}).writeTimeout())
}
