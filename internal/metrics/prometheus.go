package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's diagnostic counters. They carry no
// correctness invariants; the pipeline runs identically with a nil
// *Metrics.
type Metrics struct {
	// Synchronizer
	Ticks         prometheus.Counter
	FramesEmitted prometheus.Counter
	BytesReceived *prometheus.CounterVec
	BytesDropped  *prometheus.CounterVec

	// Capture sources
	SourceActive *prometheus.GaugeVec
	SourceLevel  *prometheus.GaugeVec

	// Downstream streaming
	FramesSent prometheus.Counter
	SendDrops  prometheus.Counter
	SendErrors prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Ticks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_sync_ticks_total",
			Help: "Total number of synchronizer ticks",
		}),
		FramesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_sync_frames_emitted_total",
			Help: "Total number of interleaved frames emitted",
		}),
		BytesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_sync_bytes_received_total",
			Help: "Total canonical PCM bytes appended per source",
		}, []string{"source"}),
		BytesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_sync_bytes_dropped_total",
			Help: "Total PCM bytes evicted by buffer overflow per source",
		}, []string{"source"}),
		SourceActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "capture_source_active",
			Help: "Whether a capture source is active (1) or not (0)",
		}, []string{"source"}),
		SourceLevel: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "capture_source_level",
			Help: "Most recent loudness estimate per source, 0 to 1",
		}, []string{"source"}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_stream_frames_sent_total",
			Help: "Total interleaved frames written to the transcription service",
		}),
		SendDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_stream_frames_dropped_total",
			Help: "Total interleaved frames dropped because the send queue was full",
		}),
		SendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_stream_send_errors_total",
			Help: "Total websocket write failures",
		}),
	}
}

// RecordTick increments the tick counter.
func (m *Metrics) RecordTick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

// RecordFrameEmitted increments the emitted-frame counter.
func (m *Metrics) RecordFrameEmitted() {
	if m == nil {
		return
	}
	m.FramesEmitted.Inc()
}

// RecordBytesReceived adds appended bytes for a source.
func (m *Metrics) RecordBytesReceived(source string, n int) {
	if m == nil {
		return
	}
	m.BytesReceived.WithLabelValues(source).Add(float64(n))
}

// RecordBytesDropped adds overflow-evicted bytes for a source.
func (m *Metrics) RecordBytesDropped(source string, n int) {
	if m == nil {
		return
	}
	m.BytesDropped.WithLabelValues(source).Add(float64(n))
}

// SetSourceActive publishes a source's active flag.
func (m *Metrics) SetSourceActive(source string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	m.SourceActive.WithLabelValues(source).Set(v)
}

// SetSourceLevel publishes a source's most recent level.
func (m *Metrics) SetSourceLevel(source string, level float64) {
	if m == nil {
		return
	}
	m.SourceLevel.WithLabelValues(source).Set(level)
}

// RecordFrameSent increments the downstream send counter.
func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// RecordSendDrop increments the send-queue drop counter.
func (m *Metrics) RecordSendDrop() {
	if m == nil {
		return
	}
	m.SendDrops.Inc()
}

// RecordSendError increments the websocket write failure counter.
func (m *Metrics) RecordSendError() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}
