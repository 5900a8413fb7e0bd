// Package metrics exposes motion engine counters to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so several engines can live in one
// process. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	frames          prometheus.Counter
	frameDuration   prometheus.Histogram
	blinks          *prometheus.CounterVec
	shakes          *prometheus.CounterVec
	modeChanges     *prometheus.CounterVec
	triggers        *prometheus.CounterVec
	triggersDropped prometheus.Counter
	clients         prometheus.Gauge
}

// NewRecorder registers the cortexmotion metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortexmotion_frames_total",
			Help: "Total number of engine frames",
		}),
		frameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortexmotion_frame_duration_seconds",
			Help:    "Wall time spent updating generators per frame",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016},
		}),
		blinks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexmotion_blink_events_total",
			Help: "Blink cycles started, by kind",
		}, []string{"kind"}),
		shakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexmotion_shakes_total",
			Help: "Head shakes started, by kind (manual or auto)",
		}, []string{"kind"}),
		modeChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexmotion_mode_changes_total",
			Help: "Idle mode transitions committed, by new mode",
		}, []string{"mode"}),
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortexmotion_triggers_total",
			Help: "Trigger commands applied, by command",
		}, []string{"command"}),
		triggersDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cortexmotion_triggers_dropped_total",
			Help: "Trigger commands dropped because the queue was full",
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cortexmotion_clients_active",
			Help: "Connected websocket clients",
		}),
	}
}

// Registry returns the registry backing this recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Frame records one engine frame that took d to update.
func (r *Recorder) Frame(d time.Duration) {
	if r == nil {
		return
	}
	r.frames.Inc()
	r.frameDuration.Observe(d.Seconds())
}

// Blink records a blink cycle of the given kind.
func (r *Recorder) Blink(kind string) {
	if r == nil {
		return
	}
	r.blinks.WithLabelValues(kind).Inc()
}

// Shake records a head shake start.
func (r *Recorder) Shake(auto bool) {
	if r == nil {
		return
	}
	kind := "manual"
	if auto {
		kind = "auto"
	}
	r.shakes.WithLabelValues(kind).Inc()
}

// ModeChange records a committed idle mode.
func (r *Recorder) ModeChange(mode string) {
	if r == nil {
		return
	}
	r.modeChanges.WithLabelValues(mode).Inc()
}

// Trigger records an applied trigger command.
func (r *Recorder) Trigger(command string) {
	if r == nil {
		return
	}
	r.triggers.WithLabelValues(command).Inc()
}

// TriggerDropped records a command lost to a full queue.
func (r *Recorder) TriggerDropped() {
	if r == nil {
		return
	}
	r.triggersDropped.Inc()
}

// ClientConnected and ClientDisconnected track websocket clients.
func (r *Recorder) ClientConnected() {
	if r == nil {
		return
	}
	r.clients.Inc()
}

func (r *Recorder) ClientDisconnected() {
	if r == nil {
		return
	}
	r.clients.Dec()
}
