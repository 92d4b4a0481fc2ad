// Package metrics exposes decode statistics as Prometheus collectors,
// grounded on the front end's own promauto-based metrics registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the frame dispatcher.
type Metrics struct {
	framesTotal      *prometheus.CounterVec // labels: tech, frame_type
	crcErrorsTotal   *prometheus.CounterVec // labels: tech
	parityErrorsTotal *prometheus.CounterVec // labels: tech
	truncatedTotal   *prometheus.CounterVec // labels: tech
	noPatternTotal   prometheus.Counter
	frameLength      *prometheus.HistogramVec // labels: tech
	lockDuration     *prometheus.HistogramVec // labels: tech, in seconds
}

// New registers and returns the decoder's Prometheus collectors.
func New() *Metrics {
	return &Metrics{
		framesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfclab_frames_total",
				Help: "Total frames emitted by the dispatcher, by technology and frame type.",
			},
			[]string{"tech", "frame_type"},
		),
		crcErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfclab_crc_errors_total",
				Help: "Total frames flagged with a CRC error, by technology.",
			},
			[]string{"tech"},
		),
		parityErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfclab_parity_errors_total",
				Help: "Total frames flagged with a parity error, by technology.",
			},
			[]string{"tech"},
		),
		truncatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfclab_truncated_frames_total",
				Help: "Total frames truncated at the max frame size, by technology.",
			},
			[]string{"tech"},
		),
		noPatternTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nfclab_no_pattern_total",
				Help: "Total times NextFrame returned NoPattern.",
			},
		),
		frameLength: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfclab_frame_length_bytes",
				Help:    "Distribution of emitted frame lengths in bytes.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
			[]string{"tech"},
		),
		lockDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfclab_lock_duration_seconds",
				Help:    "Distribution of wall-clock time a detector held lock before emitting a frame.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tech"},
		),
	}
}

// ObserveFrame records one emitted frame's statistics.
func (m *Metrics) ObserveFrame(techName, frameType string, flags uint32, length int, lockSeconds float64) {
	m.framesTotal.WithLabelValues(techName, frameType).Inc()
	m.frameLength.WithLabelValues(techName).Observe(float64(length))
	m.lockDuration.WithLabelValues(techName).Observe(lockSeconds)

	const (
		crcError    = 1 << 1
		truncated   = 1 << 2
		parityError = 1
	)
	if flags&crcError != 0 {
		m.crcErrorsTotal.WithLabelValues(techName).Inc()
	}
	if flags&parityError != 0 {
		m.parityErrorsTotal.WithLabelValues(techName).Inc()
	}
	if flags&truncated != 0 {
		m.truncatedTotal.WithLabelValues(techName).Inc()
	}
}

// ObserveNoPattern records a NoPattern deadline.
func (m *Metrics) ObserveNoPattern() { m.noPatternTotal.Inc() }
