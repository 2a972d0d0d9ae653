package wampc

import (
	"context"
	"errors"
	"fmt"
)

// EventHandler handles a publish event. Events of one subscription are
// delivered one at a time, in the order the router sent them; use
// event.Payload() to read the arguments.
type EventHandler func(event *Event)

// A Subscription is an active subscription of a Session to a topic.
type Subscription struct {
	id      ID
	topic   URI
	handler EventHandler
	session *Session
	queue   *eventQueue
}

// ID returns the router-assigned subscription id.
func (sub *Subscription) ID() ID { return sub.id }

// Topic returns the topic (or pattern) subscribed to.
func (sub *Subscription) Topic() URI { return sub.topic }

func (sub *Subscription) deliver(ev *Event) {
	_ = sub.session.recovered("event", func() { sub.handler(ev) })
}

// Publish publishes an EVENT to all subscribed peers. It does not wait for
// the router: nothing is requested back and an unsolicited PUBLISHED is
// discarded.
func (s *Session) Publish(topic string, args []interface{}, kwargs map[string]interface{}) error {
	_, err := s.publish(context.Background(), URI(topic), args, kwargs, nil)
	return err
}

// PublishWithOptions publishes with advanced options. With
// opts.Acknowledge it waits for the router's PUBLISHED and returns the
// publication id; otherwise it returns 0 as soon as the message is sent.
func (s *Session) PublishWithOptions(ctx context.Context, topic string, args []interface{}, kwargs map[string]interface{}, opts *PublishOptions) (ID, error) {
	if opts == nil || !opts.Acknowledge {
		return s.publish(ctx, URI(topic), args, kwargs, opts)
	}
	ctx, span := startSpan(ctx, "wamp.publish", attrTopic(URI(topic)))
	pub, err := s.publish(ctx, URI(topic), args, kwargs, opts)
	endSpan(span, err)
	return pub, err
}

func (s *Session) publish(ctx context.Context, topic URI, args []interface{}, kwargs map[string]interface{}, opts *PublishOptions) (ID, error) {
	if err := s.negotiated(PUBLISHER, opts.required()); err != nil {
		return 0, err
	}
	id := s.ids.next()
	msg := &Publish{
		Request:     id,
		Options:     opts.dict(),
		Topic:       topic,
		Arguments:   args,
		ArgumentsKw: kwargs,
	}
	if opts == nil || !opts.Acknowledge {
		return 0, s.send(msg)
	}

	reply, err := s.request(ctx, msg, id, nil)
	if err != nil {
		return 0, err
	}
	switch reply := reply.(type) {
	case *Published:
		return reply.Publication, nil
	case *Error:
		return 0, protocolError(reply)
	}
	return 0, errors.New(formatUnexpectedMessage(reply, PUBLISHED))
}

// Subscribe registers the EventHandler to be called for every message in the
// provided topic. It returns once the router has confirmed the subscription;
// no event that follows the confirmation is missed.
func (s *Session) Subscribe(ctx context.Context, topic string, fn EventHandler, opts *SubscribeOptions) (*Subscription, error) {
	ctx, span := startSpan(ctx, "wamp.subscribe", attrTopic(URI(topic)))
	sub, err := s.subscribe(ctx, URI(topic), fn, opts)
	endSpan(span, err)
	return sub, err
}

func (s *Session) subscribe(ctx context.Context, topic URI, fn EventHandler, opts *SubscribeOptions) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", topic)
	}
	if err := s.negotiated(SUBSCRIBER, opts.required()); err != nil {
		return nil, err
	}
	id := s.ids.next()
	sub := &Subscription{
		topic:   topic,
		handler: fn,
		session: s,
		queue:   newEventQueue(),
	}
	msg := &Subscribe{Request: id, Options: opts.dict(), Topic: topic}

	// register the handler the moment SUBSCRIBED is dispatched
	reply, err := s.requestOrRelease(ctx, msg, id, func(reply Message) {
		if subscribed, ok := reply.(*Subscribed); ok {
			sub.id = subscribed.Subscription
			s.subscriptions[sub.id] = append(s.subscriptions[sub.id], sub)
			s.metrics.subscriptionsAdd(1)
			go sub.queue.run(sub.deliver)
		}
	}, s.releaseSubscription)
	if err != nil {
		return nil, err
	}
	switch reply := reply.(type) {
	case *Subscribed:
		s.log.Debug().Str("topic", string(topic)).Uint64("subscription", uint64(reply.Subscription)).Msg("subscribed")
		return sub, nil
	case *Error:
		return nil, protocolError(reply)
	}
	return nil, errors.New(formatUnexpectedMessage(reply, SUBSCRIBED))
}

// releaseSubscription unsubscribes from a subscription the router confirmed
// after its Subscribe call gave up, unless a live subscription shares its id.
func (s *Session) releaseSubscription(reply Message) {
	subscribed, ok := reply.(*Subscribed)
	if !ok {
		return
	}
	s.mu.Lock()
	_, live := s.subscriptions[subscribed.Subscription]
	s.mu.Unlock()
	if live {
		return
	}
	s.log.Debug().Uint64("subscription", uint64(subscribed.Subscription)).Msg("releasing abandoned subscription")
	id := s.ids.next()
	s.sendRelease(&Unsubscribe{Request: id, Subscription: subscribed.Subscription}, id)
}

// Unsubscribe removes the subscription. Once it returns, the handler is not
// called again. When the router returned the same subscription id for
// several Subscribe calls, only the last Unsubscribe reaches the router.
func (s *Session) Unsubscribe(ctx context.Context, sub *Subscription) error {
	ctx, span := startSpan(ctx, "wamp.unsubscribe", attrTopic(sub.topic))
	err := s.unsubscribe(ctx, sub)
	endSpan(span, err)
	return err
}

func (s *Session) unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub.session != s {
		return fmt.Errorf("unsubscribe %s: subscription belongs to another session", sub.topic)
	}
	if err := s.negotiated(SUBSCRIBER, nil); err != nil {
		return err
	}

	s.mu.Lock()
	list := s.subscriptions[sub.id]
	idx := -1
	for i := range list {
		if list[i] == sub {
			idx = i
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return &ProtocolError{Type: UNSUBSCRIBE, Reason: ErrNoSuchSubscription}
	}
	if len(list) > 1 {
		s.subscriptions[sub.id] = append(list[:idx:idx], list[idx+1:]...)
		s.mu.Unlock()
		sub.queue.stop()
		s.metrics.subscriptionsAdd(-1)
		return nil
	}
	s.mu.Unlock()

	id := s.ids.next()
	remove := func() {
		if l := s.subscriptions[sub.id]; len(l) == 1 && l[0] == sub {
			delete(s.subscriptions, sub.id)
			sub.queue.stop()
			s.metrics.subscriptionsAdd(-1)
		}
	}
	reply, err := s.request(ctx, &Unsubscribe{Request: id, Subscription: sub.id}, id, func(reply Message) {
		switch reply := reply.(type) {
		case *Unsubscribed:
			remove()
		case *Error:
			// the router has already dropped it
			if reply.Error == ErrNoSuchSubscription {
				remove()
			}
		}
	})
	if err != nil {
		return err
	}
	switch reply := reply.(type) {
	case *Unsubscribed:
		return nil
	case *Error:
		return protocolError(reply)
	}
	return errors.New(formatUnexpectedMessage(reply, UNSUBSCRIBED))
}

func protocolError(e *Error) *ProtocolError {
	return &ProtocolError{
		Type:    e.Type,
		Reason:  e.Error,
		Details: e.Details,
		Args:    e.Arguments,
		Kwargs:  e.ArgumentsKw,
	}
}
