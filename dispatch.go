package wampc

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// receive handles messages from the router until the transport closes. It
// is the only goroutine that dispatches inbound messages, so messages are
// handled in wire order.
func (s *Session) receive() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("delivery goroutine failed")
			s.shutdown(fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	for msg := range s.transport.Receive() {
		s.metrics.messageReceived(msg.MessageType())
		s.dispatch(msg)
	}

	var cause error
	if e, ok := s.transport.(errorer); ok {
		cause = e.Err()
	}
	s.shutdown(cause)
}

func (s *Session) dispatch(msg Message) {
	switch msg.(type) {
	case *Welcome, *Abort, *Challenge:
	default:
		// only the join's outcome may arrive before WELCOME
		if s.State() == StateJoining {
			s.dispatchJoin(msg)
			return
		}
	}

	switch msg := msg.(type) {
	case *Welcome:
		s.dispatchWelcome(msg)
	case *Abort, *Challenge:
		s.dispatchJoin(msg)

	case *Published, *Subscribed, *Unsubscribed, *Result, *Registered, *Unregistered, *Error:
		s.resolve(msg)

	case *Event:
		s.dispatchEvent(msg)
	case *Invocation:
		s.dispatchInvocation(msg)
	case *Goodbye:
		s.dispatchGoodbye(msg)

	default:
		// INTERRUPT, HEARTBEAT and anything a router should never send
		s.discard(msg, discardUnhandled)
	}
}

func (s *Session) discard(msg Message, reason string) {
	ev := s.log.Debug().Stringer("type", msg.MessageType()).Str("reason", reason)
	if id, ok := requestID(msg); ok {
		ev = ev.Uint64("request", uint64(id))
	}
	if e, ok := msg.(*Event); ok {
		ev = ev.Uint64("subscription", uint64(e.Subscription))
	}
	ev.Msg("discarding message")
	s.metrics.messageDiscarded(msg.MessageType(), reason)
}

// dispatchWelcome completes the join on the delivery goroutine, so the
// session is Connected before any message that follows WELCOME is handled.
func (s *Session) dispatchWelcome(msg *Welcome) {
	s.mu.Lock()
	replies := s.joinReplies
	if replies == nil || s.state != StateJoining {
		s.mu.Unlock()
		s.discard(msg, discardUnexpectedState)
		return
	}
	s.state = StateConnected
	s.id = msg.Id
	s.details = parseWelcomeDetails(msg.Details)
	s.joinReplies = nil
	s.mu.Unlock()
	replies <- msg
}

func (s *Session) dispatchJoin(msg Message) {
	s.mu.Lock()
	replies := s.joinReplies
	if replies == nil || s.state != StateJoining {
		s.mu.Unlock()
		s.discard(msg, discardUnexpectedState)
		return
	}
	if _, ok := msg.(*Abort); ok {
		s.state = StateNotConnected
		s.joinReplies = nil
	}
	s.mu.Unlock()

	select {
	case replies <- msg:
	default:
		s.discard(msg, discardUnexpectedState)
	}
}

// resolve hands a reply to the request waiting on its id, exactly once.
func (s *Session) resolve(msg Message) {
	id, _ := requestID(msg)
	s.mu.Lock()
	p, ok := s.pending[id]
	var release func(Message)
	if ok {
		delete(s.pending, id)
		if p.accept != nil {
			p.accept(msg)
		}
		// reply has room for exactly this message
		p.reply <- msg
	} else {
		release = s.late[id]
		delete(s.late, id)
	}
	s.mu.Unlock()

	if release != nil {
		release(msg)
		return
	}
	if !ok {
		s.discard(msg, discardUnsolicited)
		return
	}
	s.metrics.pendingAdd(-1)
}

func (s *Session) dispatchEvent(msg *Event) {
	s.mu.Lock()
	subs := s.subscriptions[msg.Subscription]
	for _, sub := range subs {
		sub.queue.push(msg)
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		s.discard(msg, discardUnknownSub)
	}
}

func (s *Session) dispatchInvocation(msg *Invocation) {
	s.mu.Lock()
	reg, ok := s.registrations[msg.Registration]
	s.mu.Unlock()

	if !ok {
		s.discard(msg, discardUnknownReg)
		go s.sendInvocationError(msg.Request, ErrNoSuchRegistration)
		return
	}
	go s.invoke(reg, msg)
}

func (s *Session) dispatchGoodbye(msg *Goodbye) {
	s.mu.Lock()
	reply := s.goodbye
	s.goodbye = nil
	s.mu.Unlock()

	if reply != nil {
		reply <- msg
		return
	}

	// the router is closing the session
	if err := s.send(&Goodbye{Details: map[string]interface{}{}, Reason: ErrGoodbyeAndOut}); err != nil {
		s.log.Debug().Err(err).Msg("error answering goodbye")
	}
	s.shutdown(&ProtocolError{Type: GOODBYE, Reason: msg.Reason, Details: msg.Details})
}

// recovered runs fn, turning a panic into a logged, counted error.
func (s *Session) recovered(what string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.handlerPanic()
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg(what + " handler panicked")
			err = fmt.Errorf("%s handler panicked: %v", what, r)
		}
	}()
	fn()
	return nil
}

// eventQueue is an unbounded FIFO of events for one subscription, drained by
// its own goroutine so a slow handler only delays its own subscription.
type eventQueue struct {
	mu     sync.Mutex
	items  []*Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *eventQueue) push(ev *Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev, true
}

// stop ends run; events still queued are dropped.
func (q *eventQueue) stop() {
	q.once.Do(func() { close(q.done) })
}

func (q *eventQueue) run(deliver func(*Event)) {
	for {
		select {
		case <-q.signal:
		case <-q.done:
			return
		}
		for {
			select {
			case <-q.done:
				return
			default:
			}
			ev, ok := q.pop()
			if !ok {
				break
			}
			deliver(ev)
		}
	}
}
