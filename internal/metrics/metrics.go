// Package metrics provides Prometheus metrics for the recording pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values of RecordingsFinished
const (
	OutcomeComplete   = "complete"
	OutcomeIncomplete = "incomplete"
)

// Reason label values of WorkersAbandoned
const (
	ReasonSuperseded    = "superseded"
	ReasonNotPlaying    = "not_playing"
	ReasonAdvertisement = "advertisement"
	ReasonShutdown      = "shutdown"
	ReasonStartFailed   = "start_failed"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	// TrackChanges counts observed track identity changes.
	TrackChanges prometheus.Counter

	// RecordingsStarted counts encoder sessions launched.
	RecordingsStarted prometheus.Counter

	// RecordingsFinished counts stopped encoder sessions by outcome.
	RecordingsFinished *prometheus.CounterVec

	// WorkersAbandoned counts track-change workers that did not record, by reason.
	WorkersAbandoned *prometheus.CounterVec

	// LiveSessions tracks encoder sessions currently in the live set.
	LiveSessions prometheus.Gauge
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TrackChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "trackcap_track_changes_total",
			Help: "Total number of track identity changes observed.",
		}),
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "trackcap_recordings_started_total",
			Help: "Total number of encoder sessions started.",
		}),
		RecordingsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trackcap_recordings_finished_total",
			Help: "Total number of encoder sessions stopped, by outcome (complete/incomplete).",
		}, []string{"outcome"}),
		WorkersAbandoned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trackcap_workers_abandoned_total",
			Help: "Total number of track-change workers that started no recording, by reason.",
		}, []string{"reason"}),
		LiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "trackcap_live_sessions",
			Help: "Current number of live encoder sessions.",
		}),
	}
}

// TrackChanged increments the track change counter
func (m *Metrics) TrackChanged() {
	if m == nil {
		return
	}
	m.TrackChanges.Inc()
}

// RecordingStarted increments the started counter
func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordingFinished counts a stopped session
func (m *Metrics) RecordingFinished(clean bool) {
	if m == nil {
		return
	}
	outcome := OutcomeIncomplete
	if clean {
		outcome = OutcomeComplete
	}
	m.RecordingsFinished.WithLabelValues(outcome).Inc()
}

// WorkerAbandoned counts a worker that gave up
func (m *Metrics) WorkerAbandoned(reason string) {
	if m == nil {
		return
	}
	m.WorkersAbandoned.WithLabelValues(reason).Inc()
}

// SetLive records the size of the live session set
func (m *Metrics) SetLive(n int) {
	if m == nil {
		return
	}
	m.LiveSessions.Set(float64(n))
}
