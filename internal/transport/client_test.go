package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/session"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextState(t *testing.T, ch <-chan session.State) session.State {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state")
		return ""
	}
}

func nextEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return bus.Event{}
	}
}

func TestClientLifecycle(t *testing.T) {
	visemes, err := NewServerMessage(ServerVisemesEvent, []map[string]any{{"duration": 0.2, "visemes": []int{1}}})
	require.NoError(t, err)
	srv := httptest.NewServer(NewScriptServer([]Step{
		{Envelope: Envelope{Type: TypeBotStartedSpeaking}},
		{Envelope: Envelope{Type: "metrics"}},
		{Envelope: visemes},
		{Envelope: Envelope{Type: TypeBotStoppedSpeaking}},
	}, 10*time.Millisecond, zerolog.Nop()))
	defer srv.Close()

	c := NewClient(Config{URL: wsURL(srv)}, zerolog.Nop())
	states := make(chan session.State, 8)
	events := make(chan bus.Event, 8)
	unsubState := c.OnState(func(s session.State) { states <- s })
	defer unsubState()
	c.OnEvent(func(e bus.Event) { events <- e })

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, session.Connecting, nextState(t, states))
	assert.Equal(t, session.Initializing, nextState(t, states))
	assert.Equal(t, session.Connected, nextState(t, states))

	assert.Equal(t, bus.EventTypeBotStartedSpeaking, nextEvent(t, events).Type)
	ev := nextEvent(t, events)
	assert.Equal(t, bus.EventTypeVisemes, ev.Type)
	assert.JSONEq(t, `[{"duration":0.2,"visemes":[1]}]`, string(Payload(ev)))
	assert.Equal(t, bus.EventTypeBotStoppedSpeaking, nextEvent(t, events).Type)

	require.NoError(t, c.Disconnect())
	assert.Equal(t, session.Disconnected, nextState(t, states))
	assert.ErrorIs(t, c.Disconnect(), session.ErrNotConnected)
	assert.ErrorIs(t, c.Send(Envelope{Type: "ping"}), session.ErrNotConnected)
}

func TestClientDialFailure(t *testing.T) {
	srv := httptest.NewServer(NewScriptServer(nil, 0, zerolog.Nop()))
	url := wsURL(srv)
	srv.Close()

	c := NewClient(Config{URL: url, HandshakeTimeout: time.Second}, zerolog.Nop())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.Disconnected, c.State())
}

func TestDecode(t *testing.T) {
	anim, err := NewServerMessage(ServerAnimationEvent, map[string]any{"animation_id": "wave"})
	require.NoError(t, err)

	tests := []struct {
		name string
		env  Envelope
		want bus.EventType
		ok   bool
		err  bool
	}{
		{name: "user started", env: Envelope{Type: TypeUserStartedSpeaking}, want: bus.EventTypeUserStartedSpeaking, ok: true},
		{name: "user stopped", env: Envelope{Type: TypeUserStoppedSpeaking}, want: bus.EventTypeUserStoppedSpeaking, ok: true},
		{name: "animation", env: anim, want: bus.EventTypeAnimation, ok: true},
		{name: "unknown server message", env: Envelope{Type: TypeServerMessage, Payload: json.RawMessage(`{"type":"other"}`)}},
		{name: "bad server message", env: Envelope{Type: TypeServerMessage, Payload: json.RawMessage(`[1]`)}, err: true},
		{name: "unknown envelope", env: Envelope{Type: "transcript"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := Decode(tt.env)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ev.Type)
			}
		})
	}
}
