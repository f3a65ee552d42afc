package simulation

import (
	"sync"
	"time"
)

// EventType represents the type of simulation event.
type EventType string

const (
	EventStepStart     EventType = "step_start"
	EventClockAdvanced EventType = "clock_advanced"
	EventObserved      EventType = "observed"
	EventActed         EventType = "acted"
	EventActFailed     EventType = "act_failed"
	EventRunComplete   EventType = "run_complete"
	EventRunError      EventType = "run_error"
)

// Event represents a simulation event. Step is the zero-based index of the
// scenario step that produced it; SimTime is the clock reading at that point.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	Step      int
	SimTime   time.Time
	Agent     string
	Content   string
	Data      map[string]any
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus manages event publication and subscription. Handlers run
// synchronously on the publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, handler := range eb.handlers[event.Type] {
		handler(event)
	}
	for _, handler := range eb.allHandlers {
		handler(event)
	}
}
