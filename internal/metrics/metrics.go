// Package metrics exposes capture pipeline counters on the default
// prometheus registry, served by the control server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsEncoded counts PCM segments encoded per channel.
	SegmentsEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livecapture",
		Name:      "segments_encoded_total",
		Help:      "Number of audio segments encoded.",
	}, []string{"channel"})

	// SegmentsUploaded counts segments successfully handed to the upload transport.
	SegmentsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livecapture",
		Name:      "segments_uploaded_total",
		Help:      "Number of encoded segments uploaded.",
	})

	// UploadRetries counts transient upload attempts that had to be retried.
	UploadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livecapture",
		Name:      "upload_retries_total",
		Help:      "Number of upload attempts retried after transient failure.",
	})

	// Warnings counts warnings surfaced by the session coordinator.
	Warnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livecapture",
		Name:      "session_warnings_total",
		Help:      "Number of session warnings emitted.",
	})

	// Failures counts unrecoverable failures surfaced by the session coordinator.
	Failures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livecapture",
		Name:      "session_failures_total",
		Help:      "Number of unrecoverable session failures.",
	})

	// RecordingChannels tracks the active-recording channel count.
	RecordingChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livecapture",
		Name:      "recording_channels",
		Help:      "Number of channels currently recording.",
	})
)
