// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for the talking head runtime
const (
	// Connection events
	EventTypeConnectionState EventType = "connection.state_changed"
	EventTypeExhausted       EventType = "connection.exhausted"

	// Speech events pushed by the transport
	EventTypeBotStartedSpeaking  EventType = "speech.bot_started"
	EventTypeBotStoppedSpeaking  EventType = "speech.bot_stopped"
	EventTypeUserStartedSpeaking EventType = "speech.user_started"
	EventTypeUserStoppedSpeaking EventType = "speech.user_stopped"

	// Server messages
	EventTypeAnimation EventType = "server.animation"
	EventTypeVisemes   EventType = "server.visemes"

	// Avatar events
	EventTypeVisemeChanged    EventType = "avatar.viseme_changed"
	EventTypeListeningChanged EventType = "avatar.listening_changed"
	EventTypeAssetsLoaded     EventType = "avatar.assets_loaded"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type and returns a func that removes it
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	unsubs := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		unsubs = append(unsubs, b.Subscribe(et, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (b *EventBus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish calls every handler subscribed to the event's type, in
// subscription order, on the caller's goroutine
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Count returns the number of handlers for an event type
func (b *EventBus) Count(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}
