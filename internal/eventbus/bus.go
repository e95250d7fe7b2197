// Package eventbus is an in-process publish/subscribe registry keyed by event name.
//
// Handlers are registered per event with On, which returns a SubscriptionID.
// Registering the same func twice yields two independent subscriptions; each is
// removed by its own Off call. Emit invokes every handler registered for the
// event, recovering and logging a panicking handler so the rest still run.
package eventbus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Name identifies an event.
type Name string

const (
	Connected    Name = "connected"
	Notification Name = "notification"
	Error        Name = "error"
)

// Known reports whether n is one of the events the bus accepts subscribers for.
func (n Name) Known() bool {
	switch n {
	case Connected, Notification, Error:
		return true
	}
	return false
}

// Event is delivered to handlers.
type Event struct {
	Name      Name
	Message   string          // connected / error text
	Payload   json.RawMessage // notification payload
	Err       error           // error events only
	Timestamp time.Time       // server timestamp, zero if not sent
}

// Handler receives events.
type Handler func(Event)

// SubscriptionID identifies one registration.
type SubscriptionID uuid.UUID

// String returns the canonical UUID form.
func (id SubscriptionID) String() string {
	return uuid.UUID(id).String()
}

// Valid reports whether id came from a successful On call.
func (id SubscriptionID) Valid() bool {
	return uuid.UUID(id) != uuid.Nil
}

type subscriber struct {
	id      SubscriptionID
	handler Handler
}

// Bus fans events out to subscribers. The zero value is not usable; call New.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[Name][]subscriber // copy-on-write per name
	closed bool
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[Name][]subscriber),
	}
}

// On registers h for name. Unknown names, nil handlers and closed buses are
// no-ops and return an invalid SubscriptionID.
func (b *Bus) On(name Name, h Handler) SubscriptionID {
	if !name.Known() || h == nil {
		return SubscriptionID{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return SubscriptionID{}
	}

	id := SubscriptionID(uuid.New())
	cur := b.subs[name]
	next := make([]subscriber, len(cur), len(cur)+1)
	copy(next, cur)
	b.subs[name] = append(next, subscriber{id: id, handler: h})

	return id
}

// Off removes the subscription id from name. It reports whether anything was removed.
// Safe to call from inside a handler during Emit.
func (b *Bus) Off(name Name, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.subs[name]
	for i, s := range cur {
		if s.id != id {
			continue
		}
		next := make([]subscriber, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = next
		}
		return true
	}
	return false
}

// Emit delivers ev to every handler registered for ev.Name and returns how many
// handlers completed without panicking. Each handler is checked just before it
// runs, so one removed or closed earlier in the same emission is skipped. The
// check and the call are not atomic: a concurrent Off or Close can return while
// a handler it raced with is still being entered.
func (b *Bus) Emit(ev Event) int {
	b.mu.RLock()
	subs := b.subs[ev.Name]
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if !b.registered(ev.Name, s.id) {
			continue
		}
		if b.invoke(s, ev) {
			delivered++
		}
	}
	return delivered
}

// Count returns the number of subscriptions for name.
func (b *Bus) Count(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Close drops every subscription and rejects later registrations. Emissions that
// begin after Close returns invoke nothing. Close does not wait for running
// handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[Name][]subscriber)
}

// registered reports whether id is still subscribed to name.
func (b *Bus) registered(name Name, id SubscriptionID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	for _, s := range b.subs[name] {
		if s.id == id {
			return true
		}
	}
	return false
}

// invoke runs one handler, isolating panics.
func (b *Bus) invoke(s subscriber, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", ev.Name,
				"subscription", s.id.String(),
				"panic", r,
			)
			ok = false
		}
	}()

	s.handler(ev)
	return true
}
