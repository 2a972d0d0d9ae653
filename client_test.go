package wampc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConnect(t *testing.T) {
	url, _ := newTestWebsocketServer(t, "wamp.2.json", "wamp.2.msgpack")

	for _, ser := range []Serialization{JSON, MSGPACK} {
		t.Run(ser.String(), func(t *testing.T) {
			client := NewClient(url, testRealm, WithReceiveTimeout(time.Second))
			client.Serialization = ser

			sess, err := client.Connect(context.Background())
			require.NoError(t, err)
			defer sess.Close()
			assert.Equal(t, StateConnected, sess.State())
			assert.Equal(t, ID(1), sess.ID())
			assert.Equal(t, URI(testRealm), sess.Realm())
		})
	}
}

func TestClientConnectErrors(t *testing.T) {
	_, err := NewClient("http://localhost/ws", testRealm).Connect(context.Background())
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = NewClient("ws://localhost:8080/ws", "").Connect(context.Background())
	assert.Error(t, err)

	_, err = NewClientFromConfig(Config{Serialization: "xml"})
	assert.Error(t, err)
}
