// Package metrics provides Prometheus metrics for the avatar runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "talkinghead"

// Metrics holds all Prometheus metrics for the runtime.
type Metrics struct {
	// Session metrics
	ConnectAttempts    prometheus.Counter
	ConnectFailures    prometheus.Counter
	WatchdogRecoveries prometheus.Counter
	WatchdogExhausted  prometheus.Counter
	ConnectionState    *prometheus.GaugeVec

	// Viseme metrics
	VisemeBatches     *prometheus.CounterVec
	VisemeTransitions prometheus.Counter
	FallbackTicks     prometheus.Counter
	SpeechTurns       prometheus.Counter
	BufferedSegments  prometheus.Gauge

	// Animation metrics
	AnimationRequests *prometheus.CounterVec
	ClipsFinished     *prometheus.CounterVec

	// Frame metrics
	FrameDelta           prometheus.Histogram
	VisibilityRecoveries prometheus.Counter
}

// New creates the metric set and registers it with reg. A nil reg leaves the
// metrics unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of transport connect attempts",
		}),
		ConnectFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Total number of failed transport connect attempts",
		}),
		WatchdogRecoveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_recoveries_total",
			Help:      "Forced reconnects after a stuck initializing state",
		}),
		WatchdogExhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_exhausted_total",
			Help:      "Sessions that ran out of stuck-state recoveries",
		}),
		ConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current transport connection state",
		}, []string{"state"}),

		VisemeBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viseme_batches_total",
			Help:      "Viseme batches received, by outcome",
		}, []string{"outcome"}),
		VisemeTransitions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viseme_transitions_total",
			Help:      "Scheduled viseme transitions that fired",
		}),
		FallbackTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viseme_fallback_ticks_total",
			Help:      "Random visemes shown while no timing data was available",
		}),
		SpeechTurns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_turns_total",
			Help:      "Bot speech turns started",
		}),
		BufferedSegments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viseme_buffered_segments",
			Help:      "Viseme segments buffered for the current turn",
		}),

		AnimationRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "animation_requests_total",
			Help:      "Animation requests, by outcome",
		}, []string{"outcome"}),
		ClipsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "animation_clips_finished_total",
			Help:      "Animation clips that finished playing, by role",
		}, []string{"role"}),

		FrameDelta: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_delta_seconds",
			Help:      "Wall-clock time between rendered frames",
			Buckets:   []float64{0.004, 0.008, 0.016, 0.033, 0.05, 0.1, 0.25, 1},
		}),
		VisibilityRecoveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visibility_recoveries_total",
			Help:      "Frames restored from persisted morph state after a visibility change",
		}),
	}
}

// Discard returns an unregistered metric set, for tests and tools.
func Discard() *Metrics {
	return New(nil)
}

// SetConnectionState flips the state gauge to the given state.
func (m *Metrics) SetConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}
