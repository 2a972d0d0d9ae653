package wampc

import "fmt"

// Message is a generic container for a WAMP message.
//
// Every concrete message is a pointer to one of the structs below. The set is
// closed: code that switches on a Message should list every type it handles
// and treat the rest as unsupported.
type Message interface {
	MessageType() MessageType
}

// MessageType is the integer code that leads every WAMP message on the wire.
type MessageType int

const (
	HELLO        MessageType = 1
	WELCOME      MessageType = 2
	ABORT        MessageType = 3
	CHALLENGE    MessageType = 4
	AUTHENTICATE MessageType = 5
	GOODBYE      MessageType = 6
	HEARTBEAT    MessageType = 7
	ERROR        MessageType = 8

	PUBLISH   MessageType = 16
	PUBLISHED MessageType = 17

	SUBSCRIBE    MessageType = 32
	SUBSCRIBED   MessageType = 33
	UNSUBSCRIBE  MessageType = 34
	UNSUBSCRIBED MessageType = 35
	EVENT        MessageType = 36

	CALL   MessageType = 48
	CANCEL MessageType = 49
	RESULT MessageType = 50

	REGISTER     MessageType = 64
	REGISTERED   MessageType = 65
	UNREGISTER   MessageType = 66
	UNREGISTERED MessageType = 67
	INVOCATION   MessageType = 68
	INTERRUPT    MessageType = 69
	YIELD        MessageType = 70
)

var messageTypes = map[MessageType]struct {
	name string
	new  func() Message
}{
	HELLO:        {"HELLO", func() Message { return new(Hello) }},
	WELCOME:      {"WELCOME", func() Message { return new(Welcome) }},
	ABORT:        {"ABORT", func() Message { return new(Abort) }},
	CHALLENGE:    {"CHALLENGE", func() Message { return new(Challenge) }},
	AUTHENTICATE: {"AUTHENTICATE", func() Message { return new(Authenticate) }},
	GOODBYE:      {"GOODBYE", func() Message { return new(Goodbye) }},
	HEARTBEAT:    {"HEARTBEAT", func() Message { return new(Heartbeat) }},
	ERROR:        {"ERROR", func() Message { return new(Error) }},
	PUBLISH:      {"PUBLISH", func() Message { return new(Publish) }},
	PUBLISHED:    {"PUBLISHED", func() Message { return new(Published) }},
	SUBSCRIBE:    {"SUBSCRIBE", func() Message { return new(Subscribe) }},
	SUBSCRIBED:   {"SUBSCRIBED", func() Message { return new(Subscribed) }},
	UNSUBSCRIBE:  {"UNSUBSCRIBE", func() Message { return new(Unsubscribe) }},
	UNSUBSCRIBED: {"UNSUBSCRIBED", func() Message { return new(Unsubscribed) }},
	EVENT:        {"EVENT", func() Message { return new(Event) }},
	CALL:         {"CALL", func() Message { return new(Call) }},
	CANCEL:       {"CANCEL", func() Message { return new(Cancel) }},
	RESULT:       {"RESULT", func() Message { return new(Result) }},
	REGISTER:     {"REGISTER", func() Message { return new(Register) }},
	REGISTERED:   {"REGISTERED", func() Message { return new(Registered) }},
	UNREGISTER:   {"UNREGISTER", func() Message { return new(Unregister) }},
	UNREGISTERED: {"UNREGISTERED", func() Message { return new(Unregistered) }},
	INVOCATION:   {"INVOCATION", func() Message { return new(Invocation) }},
	INTERRUPT:    {"INTERRUPT", func() Message { return new(Interrupt) }},
	YIELD:        {"YIELD", func() Message { return new(Yield) }},
}

// New returns an empty message of this type, or nil for an unknown code.
func (mt MessageType) New() Message {
	if t, ok := messageTypes[mt]; ok {
		return t.new()
	}
	return nil
}

func (mt MessageType) String() string {
	if t, ok := messageTypes[mt]; ok {
		return t.name
	}
	return fmt.Sprintf("MessageType(%d)", int(mt))
}

// URIs are dot-separated identifiers, where each component *should* only
// contain letters, numbers or underscores.
type URI string

// An ID is a unique, non-negative number. Values are limited to [1, 2^53] so
// they survive a round trip through a JSON number.
type ID uint64

// [HELLO, Realm|uri, Details|dict]
type Hello struct {
	Realm   URI
	Details map[string]interface{}
}

// [WELCOME, Session|id, Details|dict]
type Welcome struct {
	Id      ID
	Details map[string]interface{}
}

// [ABORT, Details|dict, Reason|uri]
type Abort struct {
	Details map[string]interface{}
	Reason  URI
}

// [CHALLENGE, AuthMethod|string, Extra|dict]
type Challenge struct {
	AuthMethod string
	Extra      map[string]interface{}
}

// [AUTHENTICATE, Signature|string, Extra|dict]
type Authenticate struct {
	Signature string
	Extra     map[string]interface{}
}

// [GOODBYE, Details|dict, Reason|uri]
type Goodbye struct {
	Details map[string]interface{}
	Reason  URI
}

// [HEARTBEAT, IncomingSeq|integer, OutgoingSeq|integer, Discard|string]
type Heartbeat struct {
	IncomingSeq uint
	OutgoingSeq uint
	Discard     string `wamp:"omitempty"`
}

// [ERROR, REQUEST.Type|int, REQUEST.Request|id, Details|dict, Error|uri, Arguments|list, ArgumentsKw|dict]
type Error struct {
	Type        MessageType
	Request     ID
	Details     map[string]interface{}
	Error       URI
	Arguments   []interface{}          `wamp:"omitempty"`
	ArgumentsKw map[string]interface{} `wamp:"omitempty"`
}

// [PUBLISH, Request|id, Options|dict, Topic|uri, Arguments|list, ArgumentsKw|dict]
type Publish struct {
	Request     ID
	Options     map[string]interface{}
	Topic       URI
	Arguments   []interface{}          `wamp:"omitempty"`
	ArgumentsKw map[string]interface{} `wamp:"omitempty"`
}

// [PUBLISHED, PUBLISH.Request|id, Publication|id]
type Published struct {
	Request     ID
	Publication ID
}

// [SUBSCRIBE, Request|id, Options|dict, Topic|uri]
type Subscribe struct {
	Request ID
	Options map[string]interface{}
	Topic   URI
}

// [SUBSCRIBED, SUBSCRIBE.Request|id, Subscription|id]
type Subscribed struct {
	Request      ID
	Subscription ID
}

// [UNSUBSCRIBE, Request|id, SUBSCRIBED.Subscription|id]
type Unsubscribe struct {
	Request      ID
	Subscription ID
}

// [UNSUBSCRIBED, UNSUBSCRIBE.Request|id]
type Unsubscribed struct {
	Request ID
}

// [EVENT, SUBSCRIBED.Subscription|id, PUBLISHED.Publication|id, Details|dict,
//
//	PUBLISH.Arguments|list, PUBLISH.ArgumentsKw|dict]
type Event struct {
	Subscription ID
	Publication  ID
	Details      map[string]interface{}
	Arguments    []interface{}          `wamp:"omitempty"`
	ArgumentsKw  map[string]interface{} `wamp:"omitempty"`
}

// [CALL, Request|id, Options|dict, Procedure|uri, Arguments|list, ArgumentsKw|dict]
type Call struct {
	Request     ID
	Options     map[string]interface{}
	Procedure   URI
	Arguments   []interface{}          `wamp:"omitempty"`
	ArgumentsKw map[string]interface{} `wamp:"omitempty"`
}

// [CANCEL, CALL.Request|id, Options|dict]
type Cancel struct {
	Request ID
	Options map[string]interface{}
}

// [RESULT, CALL.Request|id, Details|dict, YIELD.Arguments|list, YIELD.ArgumentsKw|dict]
type Result struct {
	Request     ID
	Details     map[string]interface{}
	Arguments   []interface{}          `wamp:"omitempty"`
	ArgumentsKw map[string]interface{} `wamp:"omitempty"`
}

// [REGISTER, Request|id, Options|dict, Procedure|uri]
type Register struct {
	Request   ID
	Options   map[string]interface{}
	Procedure URI
}

// [REGISTERED, REGISTER.Request|id, Registration|id]
type Registered struct {
	Request      ID
	Registration ID
}

// [UNREGISTER, Request|id, REGISTERED.Registration|id]
type Unregister struct {
	Request      ID
	Registration ID
}

// [UNREGISTERED, UNREGISTER.Request|id]
type Unregistered struct {
	Request ID
}

// [INVOCATION, Request|id, REGISTERED.Registration|id, Details|dict,
//
//	CALL.Arguments|list, CALL.ArgumentsKw|dict]
type Invocation struct {
	Request      ID
	Registration ID
	Details      map[string]interface{}
	Arguments    []interface{}          `wamp:"omitempty"`
	ArgumentsKw  map[string]interface{} `wamp:"omitempty"`
}

// [INTERRUPT, INVOCATION.Request|id, Options|dict]
type Interrupt struct {
	Request ID
	Options map[string]interface{}
}

// [YIELD, INVOCATION.Request|id, Options|dict, Arguments|list, ArgumentsKw|dict]
type Yield struct {
	Request     ID
	Options     map[string]interface{}
	Arguments   []interface{}          `wamp:"omitempty"`
	ArgumentsKw map[string]interface{} `wamp:"omitempty"`
}

func (msg *Hello) MessageType() MessageType        { return HELLO }
func (msg *Welcome) MessageType() MessageType      { return WELCOME }
func (msg *Abort) MessageType() MessageType        { return ABORT }
func (msg *Challenge) MessageType() MessageType    { return CHALLENGE }
func (msg *Authenticate) MessageType() MessageType { return AUTHENTICATE }
func (msg *Goodbye) MessageType() MessageType      { return GOODBYE }
func (msg *Heartbeat) MessageType() MessageType    { return HEARTBEAT }
func (msg *Error) MessageType() MessageType        { return ERROR }
func (msg *Publish) MessageType() MessageType      { return PUBLISH }
func (msg *Published) MessageType() MessageType    { return PUBLISHED }
func (msg *Subscribe) MessageType() MessageType    { return SUBSCRIBE }
func (msg *Subscribed) MessageType() MessageType   { return SUBSCRIBED }
func (msg *Unsubscribe) MessageType() MessageType  { return UNSUBSCRIBE }
func (msg *Unsubscribed) MessageType() MessageType { return UNSUBSCRIBED }
func (msg *Event) MessageType() MessageType        { return EVENT }
func (msg *Call) MessageType() MessageType         { return CALL }
func (msg *Cancel) MessageType() MessageType       { return CANCEL }
func (msg *Result) MessageType() MessageType       { return RESULT }
func (msg *Register) MessageType() MessageType     { return REGISTER }
func (msg *Registered) MessageType() MessageType   { return REGISTERED }
func (msg *Unregister) MessageType() MessageType   { return UNREGISTER }
func (msg *Unregistered) MessageType() MessageType { return UNREGISTERED }
func (msg *Invocation) MessageType() MessageType   { return INVOCATION }
func (msg *Interrupt) MessageType() MessageType    { return INTERRUPT }
func (msg *Yield) MessageType() MessageType        { return YIELD }

// Payload returns a view over the event's arguments.
func (msg *Event) Payload() *Payload { return NewPayload(msg.Arguments, msg.ArgumentsKw) }

// Payload returns a view over the call result's arguments.
func (msg *Result) Payload() *Payload { return NewPayload(msg.Arguments, msg.ArgumentsKw) }

// Payload returns a view over the invocation's arguments.
func (msg *Invocation) Payload() *Payload { return NewPayload(msg.Arguments, msg.ArgumentsKw) }

// Payload returns a view over the error's arguments.
func (msg *Error) Payload() *Payload { return NewPayload(msg.Arguments, msg.ArgumentsKw) }

// requestID returns the request id carried by messages that answer (or make)
// a correlated request.
func requestID(msg Message) (ID, bool) {
	switch m := msg.(type) {
	case *Error:
		return m.Request, true
	case *Publish:
		return m.Request, true
	case *Published:
		return m.Request, true
	case *Subscribe:
		return m.Request, true
	case *Subscribed:
		return m.Request, true
	case *Unsubscribe:
		return m.Request, true
	case *Unsubscribed:
		return m.Request, true
	case *Call:
		return m.Request, true
	case *Cancel:
		return m.Request, true
	case *Result:
		return m.Request, true
	case *Register:
		return m.Request, true
	case *Registered:
		return m.Request, true
	case *Unregister:
		return m.Request, true
	case *Unregistered:
		return m.Request, true
	case *Invocation:
		return m.Request, true
	case *Interrupt:
		return m.Request, true
	case *Yield:
		return m.Request, true
	}
	return 0, false
}
