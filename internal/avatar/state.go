// Package avatar owns one talking head: it wires the transport, session,
// lip-sync, animation and frame components together on a single loop.
package avatar

import (
	"github.com/normanking/talkinghead/internal/animation"
	"github.com/normanking/talkinghead/internal/session"
	"github.com/normanking/talkinghead/internal/viseme"
)

// State represents the avatar's current state
type State struct {
	SessionID   string             `json:"sessionId"`
	Connection  session.State      `json:"connection"`
	Retries     int                `json:"retries"`
	Ready       bool               `json:"ready"`
	Placeholder bool               `json:"placeholder"`
	Viseme      viseme.ID          `json:"viseme"`
	VisemeShape string             `json:"visemeShape"`
	IsSpeaking  bool               `json:"isSpeaking"`
	IsListening bool               `json:"isListening"`
	Animation   string             `json:"animation"`
	IdleClip    string             `json:"idleClip"`
	BodyClip    string             `json:"bodyClip,omitempty"`
	Pending     *animation.Request `json:"pending,omitempty"`
}

// Snapshot returns the current state. Call it on the loop.
func (r *Runtime) Snapshot() State {
	s := r.session.Session()
	st := State{
		SessionID:   s.ID,
		Connection:  s.State,
		Retries:     s.Retries,
		Ready:       r.ready,
		Placeholder: r.model != nil && r.model.Placeholder,
		Viseme:      r.viseme,
		VisemeShape: r.viseme.ShapeName(),
		IsSpeaking:  r.scheduler.TurnOpen(),
		IsListening: r.listening,
		Animation:   animation.StateLoading.String(),
	}
	if r.blend != nil {
		st.Animation = r.blend.State().String()
		st.IdleClip = r.blend.IdleClip()
		st.BodyClip = r.blend.BodyClip()
	}
	if r.pending != nil {
		req := *r.pending
		st.Pending = &req
	}
	return st
}
