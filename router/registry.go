package router

import (
	"sync"

	"github.com/saquib34/react-iframe-bridge/envelope"
)

// Handler receives a dispatched message's payload alongside the full
// envelope. Handlers run sequentially in registration order; a panic in one
// handler is isolated and does not stop the others.
type Handler func(payload any, msg *envelope.Message)

type subscription struct {
	id uint64
	fn Handler
}

// Registry maps message types to their ordered handler lists. Each Subscribe
// call creates a distinct entry; unregistering the last handler for a type
// removes the type entirely, leaving no dangling empty sets.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]subscription
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for the exact type string (no pattern
// matching) and returns its unregister function. Unregistering twice is a
// no-op.
func (r *Registry) Subscribe(msgType string, h Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[msgType] = append(r.handlers[msgType], subscription{id: id, fn: h})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.unsubscribe(msgType, id)
		})
	}
}

func (r *Registry) unsubscribe(msgType string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[msgType]
	for i, sub := range subs {
		if sub.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.handlers, msgType)
	} else {
		r.handlers[msgType] = subs
	}
}

// HandlersFor returns a snapshot of the handlers registered for msgType in
// registration order.
func (r *Registry) HandlersFor(msgType string) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[msgType]
	if len(subs) == 0 {
		return nil
	}
	out := make([]Handler, len(subs))
	for i, sub := range subs {
		out[i] = sub.fn
	}
	return out
}

// Count returns the number of handlers registered for msgType.
func (r *Registry) Count(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[msgType])
}

// Types returns the number of types with at least one handler.
func (r *Registry) Types() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Clear removes every registration. Part of the teardown contract.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]subscription)
}
