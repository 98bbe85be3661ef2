// Package events implements the solver's typed, in-process observer
// registry: on/off/emit over a closed set of event Kinds, with handlers run
// synchronously in registration order. This replaces a stringly-typed
// emitter with a small closed enum plus structured payloads, per the
// re-architecture direction for this component.
package events

import "sync"

// Kind is one of the solver's observable lifecycle events.
type Kind string

const (
	Start          Kind = "start"
	Loop           Kind = "loop"
	Process        Kind = "process"
	Abort          Kind = "abort"
	StatusStart    Kind = "statusStart"
	StatusComplete Kind = "statusComplete"
	TaskStart      Kind = "taskStart"
	TaskComplete   Kind = "taskComplete"
	TaskError      Kind = "taskError"
	TaskReady      Kind = "ready"
	TaskProcessed  Kind = "processed"
)

// Handler receives an event payload. The concrete type depends on Kind (see
// payloads.go); handlers that only care about a subset of kinds can type-
// switch or type-assert.
type Handler func(payload any)

// subscription pairs a handler with the id used to remove it later.
type subscription struct {
	id      int
	handler Handler
}

// Bus is a typed, synchronous, in-process event bus. Safe for concurrent
// Emit and On/Off calls; handlers for a given Emit run synchronously, in
// the order they were registered, on the calling goroutine.
type Bus struct {
	mu       sync.Mutex
	handlers map[Kind][]subscription
	nextID   int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]subscription)}
}

// On registers handler for kind and returns a subscription id usable with
// Off.
func (b *Bus) On(kind Kind, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], subscription{id: id, handler: handler})
	return id
}

// Off removes the handler registered under id for kind. No-op if absent.
func (b *Bus) Off(kind Kind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[kind]
	for i, s := range subs {
		if s.id == id {
			b.handlers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler registered for kind, in registration order,
// synchronously on the calling goroutine.
func (b *Bus) Emit(kind Kind, payload any) {
	b.mu.Lock()
	subs := make([]subscription, len(b.handlers[kind]))
	copy(subs, b.handlers[kind])
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(payload)
	}
}
