package wampc

import (
	"context"
	"errors"
	"fmt"
)

// MethodHandler is an RPC endpoint. ctx is canceled when the session closes.
// A nil result answers with an empty YIELD; a panic answers with
// wamp.error.runtime_error.
type MethodHandler func(ctx context.Context, inv *Invocation) *CallResult

// A Registration is a procedure this session provides.
type Registration struct {
	id        ID
	procedure URI
	handler   MethodHandler
	session   *Session
}

// ID returns the router-assigned registration id.
func (reg *Registration) ID() ID { return reg.id }

// Procedure returns the registered procedure URI (or pattern).
func (reg *Registration) Procedure() URI { return reg.procedure }

// Call calls a procedure given a URI and waits for its RESULT. A router or
// callee ERROR is returned as a *ProtocolError carrying its arguments.
func (s *Session) Call(ctx context.Context, procedure string, args []interface{}, kwargs map[string]interface{}, opts *CallOptions) (*Result, error) {
	ctx, span := startSpan(ctx, "wamp.call", attrProcedure(URI(procedure)))
	res, err := s.call(ctx, URI(procedure), args, kwargs, opts)
	endSpan(span, err)
	return res, err
}

func (s *Session) call(ctx context.Context, procedure URI, args []interface{}, kwargs map[string]interface{}, opts *CallOptions) (*Result, error) {
	if err := s.negotiated(CALLER, opts.required()); err != nil {
		return nil, err
	}
	id := s.ids.next()
	msg := &Call{
		Request:     id,
		Options:     opts.dict(),
		Procedure:   procedure,
		Arguments:   args,
		ArgumentsKw: kwargs,
	}
	reply, err := s.request(ctx, msg, id, nil)
	if err != nil {
		return nil, err
	}
	switch reply := reply.(type) {
	case *Result:
		return reply, nil
	case *Error:
		return nil, protocolError(reply)
	}
	return nil, errors.New(formatUnexpectedMessage(reply, RESULT))
}

// Register registers a procedure with the router. Invocations run
// concurrently, each on its own goroutine.
func (s *Session) Register(ctx context.Context, procedure string, fn MethodHandler, opts *RegisterOptions) (*Registration, error) {
	ctx, span := startSpan(ctx, "wamp.register", attrProcedure(URI(procedure)))
	reg, err := s.register(ctx, URI(procedure), fn, opts)
	endSpan(span, err)
	return reg, err
}

func (s *Session) register(ctx context.Context, procedure URI, fn MethodHandler, opts *RegisterOptions) (*Registration, error) {
	if fn == nil {
		return nil, fmt.Errorf("register %s: nil handler", procedure)
	}
	if err := s.negotiated(CALLEE, opts.required()); err != nil {
		return nil, err
	}
	id := s.ids.next()
	reg := &Registration{procedure: procedure, handler: fn, session: s}
	msg := &Register{Request: id, Options: opts.dict(), Procedure: procedure}

	reply, err := s.requestOrRelease(ctx, msg, id, func(reply Message) {
		if registered, ok := reply.(*Registered); ok {
			reg.id = registered.Registration
			s.registrations[reg.id] = reg
			s.metrics.registrationsAdd(1)
		}
	}, s.releaseRegistration)
	if err != nil {
		return nil, err
	}
	switch reply := reply.(type) {
	case *Registered:
		s.log.Debug().Str("procedure", string(procedure)).Uint64("registration", uint64(reply.Registration)).Msg("registered procedure")
		return reg, nil
	case *Error:
		return nil, protocolError(reply)
	}
	return nil, errors.New(formatUnexpectedMessage(reply, REGISTERED))
}

// releaseRegistration unregisters a procedure the router registered after its
// Register call gave up.
func (s *Session) releaseRegistration(reply Message) {
	registered, ok := reply.(*Registered)
	if !ok {
		return
	}
	s.log.Debug().Uint64("registration", uint64(registered.Registration)).Msg("releasing abandoned registration")
	id := s.ids.next()
	s.sendRelease(&Unregister{Request: id, Registration: registered.Registration}, id)
}

// Unregister removes a registration.
func (s *Session) Unregister(ctx context.Context, reg *Registration) error {
	ctx, span := startSpan(ctx, "wamp.unregister", attrProcedure(reg.procedure))
	err := s.unregister(ctx, reg)
	endSpan(span, err)
	return err
}

func (s *Session) unregister(ctx context.Context, reg *Registration) error {
	if reg.session != s {
		return fmt.Errorf("unregister %s: registration belongs to another session", reg.procedure)
	}
	if err := s.negotiated(CALLEE, nil); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.registrations[reg.id]
	s.mu.Unlock()
	if !ok {
		return &ProtocolError{Type: UNREGISTER, Reason: ErrNoSuchRegistration}
	}

	id := s.ids.next()
	remove := func() {
		if s.registrations[reg.id] == reg {
			delete(s.registrations, reg.id)
			s.metrics.registrationsAdd(-1)
		}
	}
	reply, err := s.request(ctx, &Unregister{Request: id, Registration: reg.id}, id, func(reply Message) {
		switch reply := reply.(type) {
		case *Unregistered:
			remove()
		case *Error:
			if reply.Error == ErrNoSuchRegistration {
				remove()
			}
		}
	})
	if err != nil {
		return err
	}
	switch reply := reply.(type) {
	case *Unregistered:
		return nil
	case *Error:
		return protocolError(reply)
	}
	return errors.New(formatUnexpectedMessage(reply, UNREGISTERED))
}

// invoke runs the handler for one INVOCATION and answers with YIELD or ERROR.
func (s *Session) invoke(reg *Registration, msg *Invocation) {
	var result *CallResult
	if err := s.recovered("invocation", func() { result = reg.handler(s.ctx, msg) }); err != nil {
		result = ErrorResult(ErrRuntimeError, []interface{}{err.Error()}, nil)
	}
	if result == nil {
		result = &CallResult{}
	}

	var tosend Message = &Yield{
		Request:     msg.Request,
		Options:     make(map[string]interface{}),
		Arguments:   result.Args,
		ArgumentsKw: result.Kwargs,
	}
	if result.Err != "" {
		tosend = &Error{
			Type:        INVOCATION,
			Request:     msg.Request,
			Details:     make(map[string]interface{}),
			Error:       result.Err,
			Arguments:   result.Args,
			ArgumentsKw: result.Kwargs,
		}
	}
	if err := s.send(tosend); err != nil {
		s.log.Debug().Err(err).Uint64("request", uint64(msg.Request)).Msg("error sending invocation result")
	}
}

func (s *Session) sendInvocationError(request ID, reason URI) {
	err := s.send(&Error{
		Type:    INVOCATION,
		Request: request,
		Details: make(map[string]interface{}),
		Error:   reason,
	})
	if err != nil {
		s.log.Debug().Err(err).Uint64("request", uint64(request)).Msg("error sending invocation error")
	}
}
