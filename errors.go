package wampc

import (
	"errors"
	"fmt"
	"strings"
)

// errors.
var (
	// ErrInvalidURL is returned before any I/O when a connection target cannot
	// be parsed or uses an unsupported scheme.
	ErrInvalidURL = errors.New("wampc: invalid url")

	// ErrConnectionClosed is the condition every pending and future operation
	// fails with once the session's connection is gone.
	ErrConnectionClosed = errors.New("wampc: connection closed")

	ErrNotConnected   = errors.New("wampc: session has not joined a realm")
	ErrJoinInProgress = errors.New("wampc: join already in progress")
	ErrAlreadyJoined  = errors.New("wampc: session already joined")

	// ErrNotNegotiated is wrapped by RoleError and FeatureError.
	ErrNotNegotiated = errors.New("wampc: not negotiated")

	// ErrInternal means the delivery goroutine itself failed.
	ErrInternal = errors.New("wampc: internal error")

	ErrTimeout       = errors.New("wampc: timeout while waiting for message")
	ErrSerialization = errors.New("wampc: serialization failed")

	ErrMissingField = errors.New("missing field")
	ErrTypeMismatch = errors.New("type mismatch")

	ErrTransportClosed = errors.New("wampc: transport is closed")
	ErrSendTimeout     = errors.New("wampc: transport send timeout")
)

// ProtocolError is a router's refusal: an ABORT during join or an ERROR in
// reply to a request.
type ProtocolError struct {
	// Type is ABORT for a refused join, GOODBYE for a router-initiated close,
	// otherwise the type of the request the router answered with ERROR.
	Type    MessageType
	Reason  URI
	Details map[string]interface{}
	Args    []interface{}
	Kwargs  map[string]interface{}
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	switch e.Type {
	case ABORT:
		fmt.Fprintf(&b, "join aborted: %s", e.Reason)
	case GOODBYE:
		fmt.Fprintf(&b, "router closed session: %s", e.Reason)
	default:
		fmt.Fprintf(&b, "%s failed: %s", e.Type, e.Reason)
	}
	b.WriteString(formatUnknownMap(e.Details))
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, " %v", e.Args)
	}
	return b.String()
}

// Payload returns the arguments the router attached to the error.
func (e *ProtocolError) Payload() *Payload { return NewPayload(e.Args, e.Kwargs) }

// TransportError wraps a failure of the underlying socket.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("wampc: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("wampc: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RoleError reports an operation whose role was not declared by one side.
type RoleError struct {
	Role string
	// Router is true when the router, rather than this client, lacks the role.
	Router bool
}

func (e *RoleError) Error() string {
	side := "client"
	if e.Router {
		side = "router"
	}
	return fmt.Sprintf("wampc: role %q not declared by %s", e.Role, side)
}

func (e *RoleError) Unwrap() error { return ErrNotNegotiated }

// FeatureError reports an option whose feature was not declared by one side.
type FeatureError struct {
	Role    string
	Feature string
	Router  bool
}

func (e *FeatureError) Error() string {
	side := "client"
	if e.Router {
		side = "router"
	}
	return fmt.Sprintf("wampc: feature %s.%s not supported by %s", e.Role, e.Feature, side)
}

func (e *FeatureError) Unwrap() error { return ErrNotNegotiated }

func formatUnexpectedMessage(msg Message, expected MessageType) string {
	return fmt.Sprintf("received unexpected %s message while waiting for %s", msg.MessageType(), expected)
}

func formatUnknownMap(m map[string]interface{}) string {
	s := ""
	for _, k := range sortedKeys(m) {
		s += fmt.Sprintf(" %s=%v", k, m[k])
	}
	return s
}
