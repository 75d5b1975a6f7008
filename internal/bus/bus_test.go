package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishInOrder(t *testing.T) {
	b := NewEventBus()
	var got []string
	b.Subscribe(EventTypeVisemes, func(Event) { got = append(got, "first") })
	b.Subscribe(EventTypeVisemes, func(Event) { got = append(got, "second") })
	b.Subscribe(EventTypeAnimation, func(Event) { got = append(got, "other") })

	b.Publish(Event{Type: EventTypeVisemes})
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()
	calls := 0
	unsub := b.Subscribe(EventTypeBotStartedSpeaking, func(Event) { calls++ })
	keep := b.Subscribe(EventTypeBotStartedSpeaking, func(Event) {})
	defer keep()

	b.Publish(Event{Type: EventTypeBotStartedSpeaking})
	unsub()
	unsub()
	b.Publish(Event{Type: EventTypeBotStartedSpeaking})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, b.Count(EventTypeBotStartedSpeaking))
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()
	var seen []EventType
	unsub := b.SubscribeMultiple(
		[]EventType{EventTypeUserStartedSpeaking, EventTypeUserStoppedSpeaking},
		func(e Event) { seen = append(seen, e.Type) },
	)

	b.Publish(Event{Type: EventTypeUserStartedSpeaking})
	b.Publish(Event{Type: EventTypeUserStoppedSpeaking})
	unsub()
	b.Publish(Event{Type: EventTypeUserStartedSpeaking})

	assert.Equal(t, []EventType{EventTypeUserStartedSpeaking, EventTypeUserStoppedSpeaking}, seen)
	assert.Zero(t, b.Count(EventTypeUserStartedSpeaking))
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	b := NewEventBus()
	calls := 0
	var unsub func()
	unsub = b.Subscribe(EventTypeVisemeChanged, func(Event) {
		calls++
		unsub()
	})

	b.Publish(Event{Type: EventTypeVisemeChanged})
	b.Publish(Event{Type: EventTypeVisemeChanged})
	assert.Equal(t, 1, calls)
}
