package mixer

import "github.com/normanking/talkinghead/internal/animation"

// ramp linearly moves a value from `from` to `to` over duration seconds.
type ramp struct {
	from, to float64
	duration float64
	elapsed  float64
}

func (r *ramp) value() float64 {
	if r.duration <= 0 || r.elapsed >= r.duration {
		return r.to
	}
	return r.from + (r.to-r.from)*(r.elapsed/r.duration)
}

func (r *ramp) done() bool { return r.elapsed >= r.duration }

// Action is a clip instance on a Mixer.
type Action struct {
	mixer *Mixer
	clip  *Clip

	time      float64
	timeScale float64
	weight    float64

	loopOnce bool
	clamp    bool
	running  bool
	paused   bool
	finished bool

	fade *ramp
	warp *ramp
}

var _ animation.Action = (*Action)(nil)

func (a *Action) Clip() string { return a.clip.Name }

func (a *Action) Duration() float64 { return a.clip.Duration }

// Time returns the action's local time in seconds.
func (a *Action) Time() float64 { return a.time }

// Reset rewinds the action and cancels any fade or warp.
func (a *Action) Reset() {
	a.time = 0
	a.paused = false
	a.finished = false
	a.weight = 1
	a.fade = nil
	a.warp = nil
}

func (a *Action) SetLoopOnce() { a.loopOnce = true }

func (a *Action) SetClampWhenFinished(clamp bool) { a.clamp = clamp }

func (a *Action) SetTimeScale(scale float64) { a.timeScale = scale }

// Play schedules the action on its mixer.
func (a *Action) Play() {
	if a.running {
		return
	}
	a.running = true
	a.mixer.activate(a)
}

// Stop removes the action from its mixer.
func (a *Action) Stop() {
	a.running = false
	a.paused = false
	a.fade = nil
	a.warp = nil
	a.mixer.deactivate(a)
}

func (a *Action) IsRunning() bool { return a.running }

// EffectiveWeight is the weight including any fade in progress.
func (a *Action) EffectiveWeight() float64 {
	if !a.running {
		return 0
	}
	if a.fade != nil {
		return a.fade.value()
	}
	return a.weight
}

// EffectiveTimeScale is the time scale including any warp in progress.
func (a *Action) EffectiveTimeScale() float64 {
	if a.warp != nil {
		return a.warp.value()
	}
	return a.timeScale
}

// FadeIn ramps the weight from 0 to 1.
func (a *Action) FadeIn(duration float64) {
	a.weight = 1
	a.fade = &ramp{from: 0, to: 1, duration: duration}
}

// FadeOut ramps the weight to 0 and stops the action when the fade ends.
func (a *Action) FadeOut(duration float64) {
	a.fade = &ramp{from: a.EffectiveWeight(), to: 0, duration: duration}
}

// CrossFadeTo fades a out and target in over duration seconds.
func (a *Action) CrossFadeTo(target animation.Action, duration float64, warp bool) {
	t, ok := target.(*Action)
	if !ok || t == a {
		return
	}
	a.FadeOut(duration)
	t.FadeIn(duration)
	if warp && a.clip.Duration > 0 && t.clip.Duration > 0 {
		outRatio := a.clip.Duration / t.clip.Duration
		inRatio := t.clip.Duration / a.clip.Duration
		a.warp = &ramp{from: a.timeScale, to: a.timeScale * outRatio, duration: duration}
		t.warp = &ramp{from: t.timeScale * inRatio, to: t.timeScale, duration: duration}
	}
}

// advance moves the action forward by dt and reports whether it reached the
// end of a play-once clip during this step.
func (a *Action) advance(dt float64) (finished bool) {
	scale := a.EffectiveTimeScale()
	if a.warp != nil {
		a.warp.elapsed += dt
		if a.warp.done() {
			a.timeScale = a.warp.to
			a.warp = nil
		}
	}

	if !a.paused {
		a.time += dt * scale
		d := a.clip.Duration
		switch {
		case a.loopOnce && a.time >= d:
			a.time = d
			if !a.finished {
				a.finished = true
				finished = true
			}
			if a.clamp {
				a.paused = true
			}
		case !a.loopOnce && d > 0 && a.time >= d:
			for a.time >= d {
				a.time -= d
			}
		}
	}

	if a.fade != nil {
		a.fade.elapsed += dt
		if a.fade.done() {
			end := a.fade.to
			a.fade = nil
			a.weight = end
			if end == 0 {
				a.Stop()
				return finished
			}
		}
	}

	if finished && !a.clamp {
		a.Stop()
	}
	return finished
}
