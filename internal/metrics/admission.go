// Package metrics provides Prometheus metrics for the streamrec capture daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Labels stay low-cardinality: platform and outcome only, never streamer or
// session ids.

var (
	// AdmissionTotal counts admission decisions by platform and result.
	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_admission_total",
		Help: "Total number of admission decisions, by platform and result (admitted/duplicate/queue_full/skipped_cancelled).",
	}, []string{"platform", "result"})

	// AdmissionWaitSeconds tracks time spent in the admission queue.
	AdmissionWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamrec_admission_wait_seconds",
		Help:    "Time from enqueue until a streamer manager is started.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"platform"})

	// QueueDepth is the current admission queue length per platform.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamrec_admission_queue_depth",
		Help: "Current number of streamers waiting for admission, by platform.",
	}, []string{"platform"})

	// ActiveManagers tracks running streamer managers per platform.
	ActiveManagers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamrec_active_managers",
		Help: "Current number of running streamer managers, by platform.",
	}, []string{"platform"})

	// CaptureSlotsInUse tracks the global capture semaphore.
	CaptureSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrec_capture_slots_in_use",
		Help: "Current number of capture slots held by live captures.",
	})
)

// RecordAdmission increments the admission counter.
func RecordAdmission(platform, result string) {
	AdmissionTotal.WithLabelValues(platform, result).Inc()
}

// SetQueueDepth sets the admission queue gauge for a platform.
func SetQueueDepth(platform string, depth int) {
	QueueDepth.WithLabelValues(platform).Set(float64(depth))
}

// GetCaptureSlotsInUse returns the current value of the slot gauge.
func GetCaptureSlotsInUse() float64 {
	var m dto.Metric
	if err := CaptureSlotsInUse.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
