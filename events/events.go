// Package events is the SDK facade's synchronous event bus. Handlers
// run inline, in the cooperative task that produced the event, after
// the triggering write has been persisted.
package events

import (
	"fmt"
	"sync"

	"github.com/gossip-project/gossip-client/identity"
)

// Type names one of the event kinds the facade emits.
type Type string

const (
	MessageReceived     Type = "MESSAGE_RECEIVED"
	DiscussionRequest    Type = "DISCUSSION_REQUEST"
	DiscussionAccepted   Type = "DISCUSSION_ACCEPTED"
	SessionRenewalNeeded Type = "SESSION_RENEWAL_NEEDED"
	Error                Type = "ERROR"
)

// Event is the payload delivered to a handler. Fields that do not
// apply to Type are left zero.
type Event struct {
	Type Type

	OwnerUserID   identity.ID
	ContactUserID identity.ID
	MessageID     int64
	Err           error
}

// Handler receives one Event. It must not block indefinitely: it runs
// inline on the cooperative task that produced the event.
type Handler func(Event)

// Bus is a synchronous, multi-subscriber dispatcher keyed by Type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// On registers handler for every future event of the given type.
func (b *Bus) On(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
}

// Emit invokes every handler registered for e.Type, in registration
// order, synchronously. A panicking handler is recovered and rerouted
// as an Error event to avoid one broken subscriber wedging the
// cooperative task; Error events themselves are never rerouted again.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, e)
	}
}

func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil && e.Type != Error {
			b.Emit(Event{Type: Error, Err: panicError{r}})
		}
	}()
	h(e)
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("events: handler panic: %v", p.v) }
