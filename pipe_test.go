package wampc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testRealm = "wampc.test.realm"

// localPeer is the router's end of an in-memory connection to a Session.
// Messages the session sends appear on sent; messages passed to deliver
// appear in the session's Receive.
type localPeer struct {
	mu       sync.Mutex
	closed   bool
	err      error
	sent     chan Message
	incoming chan Message
	// sendErr, if set, fails every Send
	sendErr error
}

func pipe() *localPeer {
	return &localPeer{
		sent:     make(chan Message, 100),
		incoming: make(chan Message, 100),
	}
}

func (p *localPeer) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrTransportClosed
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	select {
	case p.sent <- msg:
		return nil
	default:
		return ErrSendTimeout
	}
}

func (p *localPeer) Receive() <-chan Message { return p.incoming }

func (p *localPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.incoming)
	}
	return nil
}

func (p *localPeer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *localPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// deliver sends msg to the session as if it came from the router.
func (p *localPeer) deliver(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.incoming <- msg
	}
}

// drop ends the connection as if it failed with err.
func (p *localPeer) drop(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.Close()
}

// next returns the next message the session sent.
func (p *localPeer) next(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-p.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent by the session")
		return nil
	}
}

// expectNone checks that the session sends nothing for a short while.
func (p *localPeer) expectNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-p.sent:
		t.Fatalf("unexpected %s sent: %+v", msg.MessageType(), msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// expect returns the next message the session sent, which must be a T.
func expect[T Message](t *testing.T, p *localPeer) T {
	t.Helper()
	msg := p.next(t)
	m, ok := msg.(T)
	require.Truef(t, ok, "expected %T, session sent %s: %+v", m, msg.MessageType(), msg)
	return m
}

// routerDetails is a WELCOME Details dict declaring both router roles with
// every feature the client can ask for.
func routerDetails() map[string]interface{} {
	features := map[string]interface{}{
		FeaturePatternSubscription:    true,
		FeaturePublisherExclusion:     true,
		FeatureSubBlackWhiteListing:   true,
		FeaturePublisherIdent:         true,
		FeatureCallTimeout:            true,
		FeatureCallerIdentification:   true,
		FeaturePatternRegistration:    true,
		FeatureSharedRegistration:     true,
		FeatureProgressiveCallResults: true,
	}
	return map[string]interface{}{
		"agent": "test-router",
		"roles": map[string]interface{}{
			RoleBroker: map[string]interface{}{"features": features},
			RoleDealer: map[string]interface{}{"features": features},
		},
	}
}

// fullRoles declares every client role with the features routerDetails
// offers.
func fullRoles() Roles {
	roles := NewRoles(ALLROLES)
	roles.Publisher.Features = PublisherFeatures{
		PublisherIdentification:     true,
		SubscriberBlackwhiteListing: true,
		PublisherExclusion:          true,
	}
	roles.Subscriber.Features = SubscriberFeatures{PatternBasedSubscription: true}
	roles.Caller.Features = CallerFeatures{CallTimeout: true, CallerIdentification: true}
	roles.Callee.Features = CalleeFeatures{PatternBasedRegistration: true, SharedRegistration: true}
	return roles
}

type joinResult struct {
	details *WelcomeDetails
	err     error
}

func startJoin(sess *Session) <-chan joinResult {
	done := make(chan joinResult, 1)
	go func() {
		details, err := sess.Join(context.Background(), testRealm)
		done <- joinResult{details, err}
	}()
	return done
}

func waitJoin(t *testing.T, done <-chan joinResult) joinResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("join did not return")
		return joinResult{}
	}
}

// joinedSession returns a session that has joined testRealm on a router
// announcing details.
func joinedSession(t *testing.T, details map[string]interface{}, opts ...SessionOption) (*Session, *localPeer) {
	t.Helper()
	p := pipe()
	sess := NewSession(p, opts...)
	t.Cleanup(func() { sess.Close() })

	done := startJoin(sess)
	hello := expect[*Hello](t, p)
	require.Equal(t, URI(testRealm), hello.Realm)
	p.deliver(&Welcome{Id: 1234, Details: details})
	res := waitJoin(t, done)
	require.NoError(t, res.err)
	return sess, p
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}
