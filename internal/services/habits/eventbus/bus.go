// Package eventbus publishes domain events: each publish durably appends to
// the event journal and then fans the event out to in-process subscribers.
//
// Subscribers are notified after the append commits, so a delivered event is
// always readable from the journal. Subscriber failures are isolated: one
// failing handler never blocks the append or the remaining handlers.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

// Appender is the journal surface the bus writes through.
type Appender interface {
	AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
}

// Handler consumes a published event. Returned errors are logged, not
// propagated to the publisher.
type Handler func(ctx context.Context, evt event.Event) error

type subscriber struct {
	name string
	fn   Handler
}

// Bus appends events to the journal and dispatches them to subscribers.
type Bus struct {
	store Appender
	logf  func(format string, args ...any)

	mu          sync.RWMutex
	subscribers map[event.Type][]subscriber
}

// New creates a Bus backed by the provided event store.
func New(store Appender) *Bus {
	return &Bus{
		store:       store,
		logf:        log.Printf,
		subscribers: make(map[event.Type][]subscriber),
	}
}

// SetLogf overrides the bus logger. Used by tests.
func (b *Bus) SetLogf(logf func(format string, args ...any)) {
	if b == nil || logf == nil {
		return
	}
	b.logf = logf
}

// Subscribe registers a named handler for one event type. The name appears in
// failure logs so a misbehaving subscriber can be identified.
func (b *Bus) Subscribe(eventType event.Type, name string, fn Handler) error {
	if b == nil {
		return fmt.Errorf("event bus is required")
	}
	if !eventType.IsValid() {
		return fmt.Errorf("event type is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("subscriber name is required")
	}
	if fn == nil {
		return fmt.Errorf("subscriber handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber{name: name, fn: fn})
	return nil
}

// Publish appends a single event and dispatches it to subscribers. The
// returned event carries its assigned number.
func (b *Bus) Publish(ctx context.Context, evt event.Event) (event.Event, error) {
	appended, err := b.PublishAll(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return appended[0], nil
}

// PublishAll appends a batch of events in one transaction and then dispatches
// them in append order. If the append fails no event is delivered.
func (b *Bus) PublishAll(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if b == nil || b.store == nil {
		return nil, fmt.Errorf("event bus is not configured")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}

	appended, err := b.store.AppendEvents(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}

	for _, evt := range appended {
		b.dispatch(ctx, evt)
	}
	return appended, nil
}

// dispatch invokes all subscribers for the event type. Errors and panics are
// logged and swallowed so subscribers cannot fail a committed publish.
func (b *Bus) dispatch(ctx context.Context, evt event.Event) {
	b.mu.RLock()
	subs := b.subscribers[evt.Type]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(ctx, sub, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, sub subscriber, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logf("eventbus: subscriber %s panicked on %s #%d: %v", sub.name, evt.Type, evt.Number, r)
		}
	}()
	if err := sub.fn(ctx, evt); err != nil {
		b.logf("eventbus: subscriber %s failed on %s #%d: %v", sub.name, evt.Type, evt.Number, err)
	}
}

// RegisteredHandlers returns the subscriber count per event type, for
// diagnostics.
func (b *Bus) RegisteredHandlers() map[event.Type]int {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[event.Type]int, len(b.subscribers))
	for t, subs := range b.subscribers {
		counts[t] = len(subs)
	}
	return counts
}

// SubscribedTypes returns the event types with at least one subscriber in
// sorted order.
func (b *Bus) SubscribedTypes() []event.Type {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]event.Type, 0, len(b.subscribers))
	for t := range b.subscribers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
