// ==================================
// File: internal/events/bus.go
// ==================================
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed  = errors.New("event bus is shutting down")
	ErrBufferFull = errors.New("event queue full")
)

type route struct {
	id      string
	handler Handler
}

// routes is immutable once published; Subscribe and Unsubscribe swap in a copy.
type routes map[EventType][]route

func (r routes) targets(t EventType) []route {
	out := make([]route, 0, len(r[t])+len(r[AllEvents]))
	out = append(out, r[t]...)
	if t != AllEvents {
		out = append(out, r[AllEvents]...)
	}
	return out
}

// Bus is an in-memory event bus. Publish is asynchronous and served by a
// fixed set of dispatch goroutines; handlers of one event run sequentially.
type Bus struct {
	logger *zap.Logger

	table atomic.Pointer[routes]
	subMu sync.Mutex

	queue     chan Event
	closing   chan struct{}
	closeOnce sync.Once
	// sendMu keeps Publish from racing the queue close.
	sendMu     sync.RWMutex
	dispatched sync.WaitGroup
}

// NewBus starts a bus with bufferSize queued events and workers dispatchers.
func NewBus(logger *zap.Logger, bufferSize, workers int) *Bus {
	if workers < 1 {
		workers = 1
	}
	b := &Bus{
		logger:  logger.Named("events"),
		queue:   make(chan Event, bufferSize),
		closing: make(chan struct{}),
	}
	b.table.Store(&routes{})

	b.dispatched.Add(workers)
	for i := 0; i < workers; i++ {
		go b.dispatch()
	}
	return b
}

// Subscribe registers a handler for eventType, or for every event with AllEvents.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	id := uuid.NewString()
	b.update(func(next routes) {
		next[eventType] = append(next[eventType], route{id: id, handler: handler})
	})
	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
	return &subscription{id: id, bus: b, typ: eventType}
}

func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.update(func(next routes) {
		kept := make([]route, 0, len(next[eventType]))
		for _, r := range next[eventType] {
			if r.id != id {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(next, eventType)
			return
		}
		next[eventType] = kept
	})
}

func (b *Bus) update(mutate func(routes)) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	current := *b.table.Load()
	next := make(routes, len(current)+1)
	for t, rs := range current {
		next[t] = append([]route(nil), rs...)
	}
	mutate(next)
	b.table.Store(&next)
}

// Publish queues an event without blocking. A full queue drops the event
// with ErrBufferFull.
func (b *Bus) Publish(event Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	select {
	case <-b.closing:
		return ErrBusClosed
	default:
	}

	select {
	case b.queue <- event:
		return nil
	default:
		b.logger.Warn("Event queue full, dropping event", zap.String("event_type", string(event.Type())))
		return ErrBufferFull
	}
}

// PublishSync delivers event to its handlers on the caller's goroutine and
// joins their errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range b.table.Load().targets(event.Type()) {
		if err := r.handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("subscription_id", r.id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s handlers failed: %w", event.Type(), errors.Join(errs...))
	}
	return nil
}

// dispatch runs until the queue is closed and empty.
func (b *Bus) dispatch() {
	defer b.dispatched.Done()
	for event := range b.queue {
		_ = b.PublishSync(context.Background(), event)
	}
}

// Shutdown rejects new events, then waits until everything already queued
// has been handled or ctx is done.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.logger.Info("Shutting down event bus", zap.Int("pending", len(b.queue)))
		close(b.closing)
		b.sendMu.Lock()
		close(b.queue)
		b.sendMu.Unlock()
	})

	drained := make(chan struct{})
	go func() {
		b.dispatched.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout", zap.Int("pending", len(b.queue)))
		return ctx.Err()
	}
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int {
	return len(b.queue)
}
