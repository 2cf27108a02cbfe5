// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BytesWrittenTotal counts bytes written to segment files.
	BytesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_bytes_written_total",
		Help: "Total bytes written to output segments, by platform.",
	}, []string{"platform"})

	// SegmentsClosedTotal counts finalized segments.
	SegmentsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_segments_closed_total",
		Help: "Total number of finalized output segments, by platform and engine.",
	}, []string{"platform", "engine"})

	// SegmentDuration tracks media duration of finalized segments.
	SegmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamrec_segment_duration_seconds",
		Help:    "Media duration of finalized output segments.",
		Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
	}, []string{"platform"})

	// ActiveCaptures tracks streamers currently in the live capture state.
	ActiveCaptures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamrec_active_captures",
		Help: "Current number of live captures, by platform.",
	}, []string{"platform"})

	// LiveProbesTotal counts live probes by result (live/offline/error).
	LiveProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_live_probes_total",
		Help: "Total number of live probes, by platform and result.",
	}, []string{"platform", "result"})

	// EngineAttemptsTotal counts capture attempts by engine and error class.
	EngineAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_engine_attempts_total",
		Help: "Total number of capture attempts, by engine and outcome class.",
	}, []string{"engine", "class"})

	// StreamerTransitionsTotal counts state machine transitions.
	StreamerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_streamer_transitions_total",
		Help: "Total number of streamer state transitions, by target state.",
	}, []string{"to"})
)

// AddBytesWritten adds n written bytes for platform.
func AddBytesWritten(platform string, n int64) {
	if n <= 0 {
		return
	}
	BytesWrittenTotal.WithLabelValues(platform).Add(float64(n))
}

// ObserveSegment records a finalized segment.
func ObserveSegment(platform, engine string, d time.Duration) {
	SegmentsClosedTotal.WithLabelValues(platform, engine).Inc()
	SegmentDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// RecordLiveProbe records the result of a live probe.
func RecordLiveProbe(platform, result string) {
	LiveProbesTotal.WithLabelValues(platform, result).Inc()
}

// RecordEngineAttempt records the classified outcome of a capture attempt.
func RecordEngineAttempt(engine, class string) {
	EngineAttemptsTotal.WithLabelValues(engine, class).Inc()
}
