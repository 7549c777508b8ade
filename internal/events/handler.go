// ==================================
// File: internal/events/handler.go
// ==================================
package events

import (
	"context"
)

// Handler receives settlement events. Handlers run on bus goroutines and must not block
// for long.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
	typ EventType
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(event Event) error
}
