package wampc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionState is where a Session is in its lifecycle.
type SessionState int32

const (
	// StateNotConnected: the transport is up but no realm is joined.
	StateNotConnected SessionState = iota
	// StateJoining: HELLO is sent and the router has not answered yet.
	StateJoining
	// StateConnected: WELCOME received; the session can publish, subscribe,
	// call and register.
	StateConnected
	// StateClosed is terminal. Every operation fails with ErrConnectionClosed.
	StateClosed
)

func (st SessionState) String() string {
	switch st {
	case StateNotConnected:
		return "not_connected"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("SessionState(%d)", int32(st))
}

const defaultReceiveTimeout = 10 * time.Second

var goodbyeClient = &Goodbye{
	Details: map[string]interface{}{},
	Reason:  ErrCloseRealm,
}

// A SessionOption configures a Session.
type SessionOption func(*Session)

// WithRoles sets the roles and features declared in HELLO. The default
// declares all four client roles without optional features.
func WithRoles(roles Roles) SessionOption {
	return func(s *Session) { s.roles = roles }
}

// WithAgent sets the agent string sent in HELLO.
func WithAgent(agent string) SessionOption {
	return func(s *Session) { s.agent = agent }
}

// WithReceiveTimeout bounds how long any request waits for the router's
// reply, on top of the caller's context. 0 disables it.
func WithReceiveTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.receiveTimeout = d }
}

// WithLogger sets the logger the session derives its own from. The default
// is the package logger.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithMetrics makes the session record into m.
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithAuth enables challenge-response authentication. The keys of methods
// are announced as authmethods, and a CHALLENGE is answered by the function
// registered for its method.
func WithAuth(authID string, methods map[string]AuthFunc) SessionOption {
	return func(s *Session) {
		s.authID = authID
		s.auth = methods
	}
}

// WithAuthExtra sets the authextra dict sent in HELLO.
func WithAuthExtra(extra map[string]interface{}) SessionOption {
	return func(s *Session) { s.authExtra = extra }
}

// A Session is one WAMP session over one Transport. All of its methods are
// safe for concurrent use.
type Session struct {
	transport      Transport
	ids            idGenerator
	log            zerolog.Logger
	metrics        *Metrics
	roles          Roles
	agent          string
	authID         string
	auth           map[string]AuthFunc
	authExtra      map[string]interface{}
	receiveTimeout time.Duration

	mu            sync.Mutex
	state         SessionState
	realm         URI
	id            ID
	details       *WelcomeDetails
	joinReplies   chan Message
	goodbye       chan *Goodbye
	pending       map[ID]*pendingRequest
	subscriptions map[ID][]*Subscription
	registrations map[ID]*Registration
	// late holds the release of each request its caller stopped waiting for
	late map[ID]func(Message)

	// ctx is canceled on shutdown; invocation handlers receive it
	ctx    context.Context
	cancel context.CancelFunc

	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

// pendingRequest is a request waiting for its reply. accept, if set, runs on
// the delivery goroutine with s.mu held, before any later message is
// dispatched. release, if set, handles a reply that arrives after the caller
// stopped waiting.
type pendingRequest struct {
	reply   chan Message
	accept  func(Message)
	release func(Message)
}

// NewSession takes a connected Transport and starts delivering its messages.
// The session starts NotConnected; call Join next.
func NewSession(t Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport:      t,
		log:            log,
		roles:          NewRoles(ALLROLES),
		agent:          "wampc",
		receiveTimeout: defaultReceiveTimeout,
		state:          StateNotConnected,
		pending:        make(map[ID]*pendingRequest),
		subscriptions:  make(map[ID][]*Subscription),
		registrations:  make(map[ID]*Registration),
		late:           make(map[ID]func(Message)),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("conn", uuid.NewString()).Logger()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.receive()
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the router-assigned session id, or 0 before WELCOME.
func (s *Session) ID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Realm returns the realm being joined or joined.
func (s *Session) Realm() URI {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realm
}

// Details returns what the router declared in WELCOME, or nil before it.
func (s *Session) Details() *WelcomeDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Err returns why the session closed, or nil while it is open. The error
// always matches ErrConnectionClosed.
func (s *Session) Err() error {
	select {
	case <-s.closed:
		return s.err
	default:
		return nil
	}
}

// Join sends HELLO for realm and waits for the router to accept or refuse
// it. A router ABORT is returned as a *ProtocolError and leaves the session
// NotConnected. If the wait is cut short by ctx or the receive timeout the
// outcome of the join is unknown, and the session is closed.
func (s *Session) Join(ctx context.Context, realm string) (*WelcomeDetails, error) {
	ctx, span := startSpan(ctx, "wamp.join", attrRealm(URI(realm)))
	details, err := s.join(ctx, URI(realm))
	endSpan(span, err)
	return details, err
}

func (s *Session) join(ctx context.Context, realm URI) (*WelcomeDetails, error) {
	s.mu.Lock()
	switch s.state {
	case StateJoining:
		s.mu.Unlock()
		return nil, ErrJoinInProgress
	case StateConnected:
		s.mu.Unlock()
		return nil, ErrAlreadyJoined
	case StateClosed:
		s.mu.Unlock()
		return nil, s.err
	}
	replies := make(chan Message, 4)
	s.state = StateJoining
	s.realm = realm
	s.joinReplies = replies
	s.mu.Unlock()

	hello := HelloDetails{
		Roles:     s.roles,
		Agent:     s.agent,
		AuthID:    s.authID,
		AuthExtra: s.authExtra,
	}
	for method := range s.auth {
		hello.AuthMethods = append(hello.AuthMethods, method)
	}
	sort.Strings(hello.AuthMethods)
	helloDetails := hello.Dict()

	if err := s.send(&Hello{Realm: realm, Details: helloDetails}); err != nil {
		s.resetJoin(replies)
		return nil, err
	}

	for {
		msg, err := s.wait(ctx, replies)
		if err != nil {
			if !errors.Is(err, ErrConnectionClosed) {
				s.shutdown(fmt.Errorf("join interrupted: %w", err))
			}
			return nil, err
		}

		switch msg := msg.(type) {
		case *Welcome:
			s.log.Debug().Str("realm", string(realm)).Uint64("session", uint64(msg.Id)).Msg("joined realm")
			return s.Details(), nil

		case *Abort:
			return nil, &ProtocolError{Type: ABORT, Reason: msg.Reason, Details: msg.Details}

		case *Challenge:
			authFunc, ok := s.auth[msg.AuthMethod]
			if !ok {
				s.abortJoin(replies, abortNoAuthHandler)
				return nil, fmt.Errorf("no auth handler for method: %s", msg.AuthMethod)
			}
			signature, extra, err := authFunc(helloDetails, msg.Extra)
			if err != nil {
				s.abortJoin(replies, abortAuthFailure)
				return nil, err
			}
			if extra == nil {
				extra = map[string]interface{}{}
			}
			if err := s.send(&Authenticate{Signature: signature, Extra: extra}); err != nil {
				s.resetJoin(replies)
				return nil, err
			}

		default:
			s.abortJoin(replies, abortUnexpectedMessage)
			return nil, errors.New(formatUnexpectedMessage(msg, WELCOME))
		}
	}
}

// resetJoin returns a failed join attempt to NotConnected.
func (s *Session) resetJoin(replies chan Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinReplies == replies {
		s.joinReplies = nil
		if s.state == StateJoining {
			s.state = StateNotConnected
		}
	}
}

func (s *Session) abortJoin(replies chan Message, reason URI) {
	if err := s.send(&Abort{Details: map[string]interface{}{}, Reason: reason}); err != nil {
		s.log.Debug().Err(err).Msg("error sending abort")
	}
	s.resetJoin(replies)
}

// Leave says GOODBYE to the router, waits for its reply and closes the
// session.
func (s *Session) Leave(ctx context.Context) error {
	ctx, span := startSpan(ctx, "wamp.leave", attrRealm(s.Realm()))
	err := s.leave(ctx)
	endSpan(span, err)
	return err
}

func (s *Session) leave(ctx context.Context) error {
	s.mu.Lock()
	if err := s.connectedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	reply := make(chan *Goodbye, 1)
	s.goodbye = reply
	s.mu.Unlock()

	if err := s.send(goodbyeClient); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if s.receiveTimeout > 0 {
		timer := time.NewTimer(s.receiveTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	var err error
	select {
	case msg := <-reply:
		s.log.Debug().Str("reason", string(msg.Reason)).Msg("left realm")
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout:
		err = ErrTimeout
	case <-s.closed:
		return nil
	}
	s.shutdown(errors.New("left realm"))
	return err
}

// Close closes the session and its transport without a GOODBYE. Pending
// requests fail with ErrConnectionClosed.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

// connectedLocked reports whether the session may issue requests.
func (s *Session) connectedLocked() error {
	switch s.state {
	case StateConnected:
		return nil
	case StateClosed:
		return s.err
	}
	return ErrNotConnected
}

// negotiated checks, without any I/O, that the session is joined and that
// role r and the required features were declared by both sides.
func (s *Session) negotiated(r Role, required []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectedLocked(); err != nil {
		return err
	}
	return negotiate(s.roles, s.details.Roles, r, required)
}

// send hands msg to the transport. Any failure other than an unencodable
// message ends the session.
func (s *Session) send(msg Message) error {
	if err := s.transport.Send(msg); err != nil {
		if errors.Is(err, ErrSerialization) {
			return err
		}
		s.shutdown(err)
		return s.err
	}
	s.metrics.messageSent(msg.MessageType())
	return nil
}

// request sends msg and waits for the reply correlated by id. The pending
// entry is removed on every exit path.
func (s *Session) request(ctx context.Context, msg Message, id ID, accept func(Message)) (Message, error) {
	return s.requestOrRelease(ctx, msg, id, accept, nil)
}

// requestOrRelease is request for a message the router acts on even when
// nobody waits for the reply. A reply that arrives after ctx ended or the
// receive timeout fired is handed to release on the delivery goroutine.
func (s *Session) requestOrRelease(ctx context.Context, msg Message, id ID, accept, release func(Message)) (Message, error) {
	reply := make(chan Message, 1)
	s.mu.Lock()
	if err := s.connectedLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.pending[id] = &pendingRequest{reply: reply, accept: accept, release: release}
	s.mu.Unlock()
	s.metrics.pendingAdd(1)
	tagRequest(ctx, id)

	if err := s.send(msg); err != nil {
		s.forget(id)
		return nil, err
	}
	msg, err := s.wait(ctx, reply)
	if err != nil {
		// once abandoned, a reply can no longer be accepted; one that was
		// accepted first must not be lost
		s.abandon(id)
		select {
		case msg := <-reply:
			return msg, nil
		default:
			return nil, err
		}
	}
	return msg, nil
}

func (s *Session) forget(id ID) {
	s.mu.Lock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		s.metrics.pendingAdd(-1)
	}
}

// abandon forgets a request whose caller stopped waiting, keeping its
// release for the reply the router may still send.
func (s *Session) abandon(id ID) {
	s.mu.Lock()
	p, ok := s.pending[id]
	delete(s.pending, id)
	if ok && p.release != nil && s.state == StateConnected {
		s.late[id] = p.release
	}
	s.mu.Unlock()
	if ok {
		s.metrics.pendingAdd(-1)
	}
}

// sendRelease sends a request undoing what the router did for an abandoned
// one. Its reply is dropped.
func (s *Session) sendRelease(msg Message, id ID) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.late[id] = func(Message) {}
	s.mu.Unlock()
	if err := s.send(msg); err != nil {
		s.log.Debug().Err(err).Stringer("type", msg.MessageType()).Msg("error sending release")
	}
}

// wait blocks until ch yields, ctx ends, the receive timeout fires or the
// session closes.
func (s *Session) wait(ctx context.Context, ch <-chan Message) (Message, error) {
	var timeout <-chan time.Time
	if s.receiveTimeout > 0 {
		timer := time.NewTimer(s.receiveTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	var err error
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout:
		err = ErrTimeout
	case <-s.closed:
		err = s.err
	}
	// a reply that raced the other cases still wins
	select {
	case msg := <-ch:
		return msg, nil
	default:
		return nil, err
	}
}

// shutdown moves the session to Closed exactly once: every waiter is
// released, every subscription queue is stopped and the transport closed.
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		err := ErrConnectionClosed
		if cause != nil && !errors.Is(cause, ErrConnectionClosed) {
			err = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
		} else if cause != nil {
			err = cause
		}

		s.mu.Lock()
		s.err = err
		s.state = StateClosed
		pending := len(s.pending)
		s.pending = make(map[ID]*pendingRequest)
		subs := s.subscriptions
		s.subscriptions = make(map[ID][]*Subscription)
		regs := len(s.registrations)
		s.registrations = make(map[ID]*Registration)
		s.late = make(map[ID]func(Message))
		s.joinReplies = nil
		s.goodbye = nil
		s.mu.Unlock()

		close(s.closed)
		s.cancel()

		nsubs := 0
		for _, list := range subs {
			for _, sub := range list {
				sub.queue.stop()
				nsubs++
			}
		}
		s.metrics.pendingAdd(-float64(pending))
		s.metrics.subscriptionsAdd(-float64(nsubs))
		s.metrics.registrationsAdd(-float64(regs))

		if cause != nil {
			s.log.Debug().Err(cause).Msg("session closed")
		} else {
			s.log.Debug().Msg("session closed")
		}
		if cerr := s.transport.Close(); cerr != nil {
			s.log.Debug().Err(cerr).Msg("error closing transport")
		}
	})
}
