// Package animation drives the avatar's body animation: perpetual random idle
// clips, crossfaded into externally requested body clips and back.
package animation

// Action is a playable instance of a named clip on a Mixer.
type Action interface {
	Clip() string
	// Duration is the clip length in seconds.
	Duration() float64
	Reset()
	SetLoopOnce()
	SetClampWhenFinished(clamp bool)
	SetTimeScale(scale float64)
	Play()
	Stop()
	IsRunning() bool
	// CrossFadeTo fades this action out and target in over duration seconds.
	// With warp, both actions' time scales are blended toward each other's
	// clip length during the fade.
	CrossFadeTo(target Action, duration float64, warp bool)
}

// Mixer owns clip actions and reports when a play-once clip finishes.
type Mixer interface {
	ClipAction(clip string) (Action, bool)
	Update(dt float64)
	// OnFinished registers fn to be called with the name of each clip that
	// reaches its end. The returned func unregisters it.
	OnFinished(fn func(clip string)) (unsubscribe func())
}
