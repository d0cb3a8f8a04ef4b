// Package telemetry exposes Prometheus instrumentation for decoding and
// scoring.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvmetrics_frames_decoded_total",
		Help: "Total frames decoded from raw video sources",
	}, []string{"format"})

	decodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvmetrics_decode_errors_total",
		Help: "Total failed frame decodes",
	}, []string{"format"})

	framesScoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvmetrics_frames_scored_total",
		Help: "Total frame pairs scored per metric",
	}, []string{"metric"})

	frameComputeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yuvmetrics_frame_compute_seconds",
		Help:    "Time spent scoring one frame pair",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
	}, []string{"metric"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yuvmetrics_runs_total",
		Help: "Completed metric runs by outcome",
	}, []string{"metric", "status"})
)

// RecordFrameDecoded counts one successfully decoded frame.
func RecordFrameDecoded(format string) {
	framesDecodedTotal.WithLabelValues(format).Inc()
}

// RecordDecodeError counts one failed decode.
func RecordDecodeError(format string) {
	decodeErrorsTotal.WithLabelValues(format).Inc()
}

// ObserveFrameScored records the scoring of one frame pair.
func ObserveFrameScored(metric string, elapsed time.Duration) {
	framesScoredTotal.WithLabelValues(metric).Inc()
	frameComputeSeconds.WithLabelValues(metric).Observe(elapsed.Seconds())
}

// RecordRun counts a finished run as "ok" or "error".
func RecordRun(metric string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	runsTotal.WithLabelValues(metric, status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }
