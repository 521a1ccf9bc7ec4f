// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Ingestion
	FramesReceived prometheus.Counter
	SamplesVoiced  prometheus.Counter
	Connections    prometheus.Gauge

	// Decoding
	Decodes        *prometheus.CounterVec // label: kind = partial|final
	DecodeFailures *prometheus.CounterVec
	DecodeDuration *prometheus.HistogramVec

	// Fan-out
	Listeners       prometheus.Gauge
	EventsPublished prometheus.Counter
}

// New registers the service metrics on the given registerer. Tests hand
// in a fresh registry so repeated construction doesn't collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "hear_frames_received_total",
			Help: "Binary audio frames received over live connections",
		}),
		SamplesVoiced: factory.NewCounter(prometheus.CounterOpts{
			Name: "hear_samples_voiced_total",
			Help: "Canonical-rate samples that passed the voice gate",
		}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hear_connections",
			Help: "Live ingestion connections",
		}),
		Decodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hear_decodes_total",
			Help: "Transcription engine submissions",
		}, []string{"kind"}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hear_decode_failures_total",
			Help: "Transcription engine submissions that errored",
		}, []string{"kind"}),
		DecodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hear_decode_duration_seconds",
			Help:    "Wall time of transcription engine calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
		Listeners: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hear_listeners",
			Help: "Registered transcript stream listeners",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "hear_events_published_total",
			Help: "Transcript events pushed to the broadcast hub",
		}),
	}
}
