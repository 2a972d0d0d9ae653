package wampc

import "sync/atomic"

const (
	// --- Interactions ---

	// Peer provided an incorrect URI for any URI-based attribute of WAMP message,
	// such as realm, topic or procedure.
	ErrInvalidUri = URI("wamp.error.invalid_uri")

	// A Dealer could not perform a call, since no procedure is currently
	// registered under the given URI.
	ErrNoSuchProcedure = URI("wamp.error.no_such_procedure")

	// A Broker could not perform an unsubscribe, since the given subscription is
	// not active.
	ErrNoSuchSubscription = URI("wamp.error.no_such_subscription")

	// A Dealer could not perform an unregister, since the given registration is
	// not active.
	ErrNoSuchRegistration = URI("wamp.error.no_such_registration")

	// The payload of a call, publish or result did not conform.
	ErrInvalidArgument = URI("wamp.error.invalid_argument")

	// A callee handler failed while producing a result.
	ErrRuntimeError = URI("wamp.error.runtime_error")

	// --- Session Close ---

	// The Peer is shutting down completely - used as a GOODBYE (or ABORT) reason.
	ErrSystemShutdown = URI("wamp.close.system_shutdown")

	// The Peer wants to leave the realm - used as a GOODBYE reason.
	ErrCloseRealm = URI("wamp.close.close_realm")

	// A Peer acknowledges ending of a session - used as a GOODBYE reply reason.
	ErrGoodbyeAndOut = URI("wamp.close.goodbye_and_out")

	// A join, call, register, publish or subscribe failed, since the Peer is not
	// authorized to perform the operation.
	ErrNotAuthorized = URI("wamp.error.not_authorized")

	// Peer wanted to join a non-existing realm.
	ErrNoSuchRealm = URI("wamp.error.no_such_realm")

	// --- Client aborts ---

	abortUnexpectedMessage = URI("wampc.error.unexpected_message_type")
	abortNoAuthHandler     = URI("wampc.error.no_handler_for_authmethod")
	abortAuthFailure       = URI("wampc.error.authentication_failure")
)

const maxID uint64 = 1 << 53

// idGenerator hands out request ids for one session. Ids start at 1 and are
// never reused while the session lives; WAMP caps them at 2^53, which a
// session would need centuries of traffic to reach.
type idGenerator struct {
	last atomic.Uint64
}

func (g *idGenerator) next() ID {
	for {
		cur := g.last.Load()
		n := cur + 1
		if n > maxID {
			n = 1
		}
		if g.last.CompareAndSwap(cur, n) {
			return ID(n)
		}
	}
}
