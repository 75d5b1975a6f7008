// Package transport connects the avatar to the conversation server over a
// WebSocket and turns server envelopes into bus events.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/normanking/talkinghead/internal/bus"
)

// Envelope is every frame on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope types
const (
	TypeBotStartedSpeaking  = "bot-started-speaking"
	TypeBotStoppedSpeaking  = "bot-stopped-speaking"
	TypeUserStartedSpeaking = "user-started-speaking"
	TypeUserStoppedSpeaking = "user-stopped-speaking"
	TypeServerMessage       = "server-message"
	TypeBotReady            = "bot-ready"
	TypeClientReady         = "client-ready"
	TypeError               = "error"
)

// Server message types carried inside a server-message payload
const (
	ServerAnimationEvent = "animation-event"
	ServerVisemesEvent   = "visemes-event"
)

// ServerMessage is the payload of a server-message envelope.
type ServerMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var speechEvents = map[string]bus.EventType{
	TypeBotStartedSpeaking:  bus.EventTypeBotStartedSpeaking,
	TypeBotStoppedSpeaking:  bus.EventTypeBotStoppedSpeaking,
	TypeUserStartedSpeaking: bus.EventTypeUserStartedSpeaking,
	TypeUserStoppedSpeaking: bus.EventTypeUserStoppedSpeaking,
}

// Decode turns an envelope into a bus event. ok is false for envelopes that
// carry no avatar event (bot-ready, unknown types).
func Decode(env Envelope) (ev bus.Event, ok bool, err error) {
	if et, found := speechEvents[env.Type]; found {
		return bus.Event{Type: et}, true, nil
	}
	if env.Type != TypeServerMessage {
		return bus.Event{}, false, nil
	}

	var msg ServerMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return bus.Event{}, false, fmt.Errorf("decode server message: %w", err)
	}
	switch msg.Type {
	case ServerAnimationEvent:
		return bus.Event{Type: bus.EventTypeAnimation, Data: map[string]any{"payload": msg.Payload}}, true, nil
	case ServerVisemesEvent:
		return bus.Event{Type: bus.EventTypeVisemes, Data: map[string]any{"payload": msg.Payload}}, true, nil
	}
	return bus.Event{}, false, nil
}

// NewServerMessage wraps a typed server message in an envelope.
func NewServerMessage(kind string, payload any) (Envelope, error) {
	inner, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	outer, err := json.Marshal(ServerMessage{Type: kind, Payload: inner})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode server message: %w", err)
	}
	return Envelope{Type: TypeServerMessage, Payload: outer}, nil
}

// Payload extracts the raw payload carried by a server message event.
func Payload(ev bus.Event) []byte {
	raw, _ := ev.Data["payload"].(json.RawMessage)
	return raw
}
