package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Step is one scripted envelope, sent After the previous step.
type Step struct {
	After    time.Duration
	Envelope Envelope
}

// ScriptServer is a conversation server that replays a fixed script to every
// client. It backs the demo command and transport tests.
type ScriptServer struct {
	steps      []Step
	readyDelay time.Duration
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewScriptServer creates a server that answers client-ready with bot-ready
// after readyDelay, then plays steps.
func NewScriptServer(steps []Step, readyDelay time.Duration, logger zerolog.Logger) *ScriptServer {
	return &ScriptServer{
		steps:      steps,
		readyDelay: readyDelay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "script-server").Logger(),
	}
}

func (s *ScriptServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Upgrade failed")
		return
	}
	defer conn.Close()

	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != TypeClientReady {
		s.logger.Warn().Err(err).Str("type", hello.Type).Msg("Expected client-ready")
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !s.wait(closed, s.readyDelay) {
		return
	}
	if err := conn.WriteJSON(Envelope{Type: TypeBotReady}); err != nil {
		return
	}

	for i, step := range s.steps {
		if !s.wait(closed, step.After) {
			return
		}
		if err := conn.WriteJSON(step.Envelope); err != nil {
			s.logger.Debug().Err(err).Int("step", i).Msg("Client went away")
			return
		}
	}
	s.logger.Info().Int("steps", len(s.steps)).Msg("Script finished")
	<-closed
}

func (s *ScriptServer) wait(closed <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-closed:
		return false
	case <-t.C:
		return true
	}
}
