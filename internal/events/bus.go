// Package events provides the in-process event bus and typed event data
// used for job lifecycle and progress streaming.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a class of event.
type EventType string

const (
	// JobQueued fires when a job enters the queue.
	JobQueued EventType = "job_queued"
	// JobStarted fires when a worker claims a job.
	JobStarted EventType = "job_started"
	// JobProgress fires on the gate-loop progress cadence.
	JobProgress EventType = "job_progress"
	// JobCompleted fires when a job reaches the completed state.
	JobCompleted EventType = "job_completed"
	// JobFailed fires when a job reaches the failed state.
	JobFailed EventType = "job_failed"
	// JobCancelled fires when a job is cancelled.
	JobCancelled EventType = "job_cancelled"
	// SystemStatusChanged fires on server status transitions.
	SystemStatusChanged EventType = "system_status_changed"
)

// Event is a single bus message.
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Typed     EventData              `json:"typed,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler receives events for a subscription.
type Handler func(event *Event)

// Bus is a synchronous publish/subscribe event bus. Handlers run inline on
// the emitting goroutine; slow consumers must buffer on their side (the SSE
// and websocket streams do).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]*subscription
	allHandlers []*subscription
	log         zerolog.Logger
}

type subscription struct {
	fn Handler
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]*subscription),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type. The returned function
// removes the subscription; per-connection subscribers must call it on
// disconnect or the handler leaks for the life of the bus.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	sub := &subscription{fn: handler}
	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.subscribers[eventType] = remove(b.subscribers[eventType], sub)
		b.mu.Unlock()
	}
}

// SubscribeAll registers a handler for every event type. The returned
// function removes the subscription.
func (b *Bus) SubscribeAll(handler Handler) func() {
	sub := &subscription{fn: handler}
	b.mu.Lock()
	b.allHandlers = append(b.allHandlers, sub)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.allHandlers = remove(b.allHandlers, sub)
		b.mu.Unlock()
	}
}

func remove(subs []*subscription, target *subscription) []*subscription {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Emit publishes an untyped event.
func (b *Bus) Emit(eventType EventType, source string, data map[string]interface{}) {
	b.dispatch(&Event{
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// EmitTyped publishes an event with structured data.
func (b *Bus) EmitTyped(eventType EventType, source string, data EventData) {
	b.dispatch(&Event{
		Type:      eventType,
		Source:    source,
		Typed:     data,
		Timestamp: time.Now(),
	})
}

func (b *Bus) dispatch(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type])+len(b.allHandlers))
	for _, sub := range b.subscribers[event.Type] {
		handlers = append(handlers, sub.fn)
	}
	for _, sub := range b.allHandlers {
		handlers = append(handlers, sub.fn)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
