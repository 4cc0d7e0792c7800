// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics.
// Every method is safe on a nil receiver so workers can run without metrics.
type Metrics struct {
	FramesRead      atomic.Uint64
	FramesDelivered atomic.Uint64
	ReadErrors      atomic.Uint64
	DetectionsRun   atomic.Uint64
	ObjectsDetected atomic.Int64 // count of the last detection
	RecordingActive atomic.Uint64
	ImagesSaved     atomic.Uint64
	VideosSaved     atomic.Uint64

	fps      *FPSHistory
	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		fps:      NewFPSHistory(DefaultHistoryLen, time.Second),
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	counter := func(name, help string, v *atomic.Uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}

	counter("crabwatch_frames_read_total", "Total frames read from sources", &m.FramesRead)
	counter("crabwatch_frames_delivered_total", "Total frames delivered to consumers", &m.FramesDelivered)
	counter("crabwatch_read_errors_total", "Total failed source reads", &m.ReadErrors)
	counter("crabwatch_detections_total", "Total frames run through the detector", &m.DetectionsRun)
	counter("crabwatch_images_saved_total", "Total still images written", &m.ImagesSaved)
	counter("crabwatch_videos_saved_total", "Total recordings started", &m.VideosSaved)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "crabwatch_objects_detected",
			Help: "Objects counted in the last detected frame",
		},
		func() float64 { return float64(m.ObjectsDetected.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "crabwatch_recording_active",
			Help: "Recording active (0=inactive, 1=active)",
		},
		func() float64 { return float64(m.RecordingActive.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "crabwatch_capture_fps",
			Help: "Frames read during the last complete second",
		},
		func() float64 { return float64(m.fps.Last()) },
	))
}

// RegisterDrops exposes a mailbox drop counter under the given slot label.
func (m *Metrics) RegisterDrops(slot string, fn func() uint64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "crabwatch_mailbox_drops_total",
			Help:        "Frames replaced before a consumer took them",
			ConstLabels: prometheus.Labels{"slot": slot},
		},
		func() float64 { return float64(fn()) },
	))
}

// FrameRead counts a successful read.
func (m *Metrics) FrameRead() {
	if m == nil {
		return
	}
	m.FramesRead.Add(1)
	m.fps.Tick(time.Now())
}

// FrameDelivered counts a frame handed to a consumer.
func (m *Metrics) FrameDelivered() {
	if m == nil {
		return
	}
	m.FramesDelivered.Add(1)
}

// ReadError counts a failed read.
func (m *Metrics) ReadError() {
	if m == nil {
		return
	}
	m.ReadErrors.Add(1)
}

// Detection records one detector run and its count.
func (m *Metrics) Detection(count int) {
	if m == nil {
		return
	}
	m.DetectionsRun.Add(1)
	m.ObjectsDetected.Store(int64(count))
}

// SetRecording updates the recording gauge.
func (m *Metrics) SetRecording(active bool) {
	if m == nil {
		return
	}
	if active {
		m.RecordingActive.Store(1)
	} else {
		m.RecordingActive.Store(0)
	}
}

// ImageSaved counts a written still.
func (m *Metrics) ImageSaved() {
	if m == nil {
		return
	}
	m.ImagesSaved.Add(1)
}

// VideoSaved counts a started recording.
func (m *Metrics) VideoSaved() {
	if m == nil {
		return
	}
	m.VideosSaved.Add(1)
}

// FPS returns the per-second read history, oldest first.
func (m *Metrics) FPS() []int {
	if m == nil {
		return nil
	}
	return m.fps.Values(time.Now())
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DefaultHistoryLen is the number of windows kept by FPSHistory.
const DefaultHistoryLen = 20

// FPSHistory counts events in fixed windows and keeps the most recent ones.
type FPSHistory struct {
	mu      sync.Mutex
	window  time.Duration
	size    int
	start   time.Time
	current int
	history []int
}

// NewFPSHistory keeps size windows of the given length.
func NewFPSHistory(size int, window time.Duration) *FPSHistory {
	return &FPSHistory{
		window:  window,
		size:    size,
		history: make([]int, 0, size),
	}
}

// Tick counts one event at now.
func (h *FPSHistory) Tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advance(now)
	h.current++
}

// Values returns the completed windows, oldest first.
func (h *FPSHistory) Values(now time.Time) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advance(now)
	return append([]int(nil), h.history...)
}

// Last returns the most recent completed window.
func (h *FPSHistory) Last() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.history) == 0 {
		return 0
	}
	return h.history[len(h.history)-1]
}

// advance closes every window that ended before now. Idle windows count as 0.
func (h *FPSHistory) advance(now time.Time) {
	if h.start.IsZero() {
		h.start = now
		return
	}
	for now.Sub(h.start) >= h.window {
		h.push(h.current)
		h.current = 0
		h.start = h.start.Add(h.window)
		// after a long idle gap only the last size windows matter
		if now.Sub(h.start) > time.Duration(h.size)*h.window {
			h.start = now.Add(-time.Duration(h.size) * h.window)
		}
	}
}

func (h *FPSHistory) push(v int) {
	if len(h.history) == h.size {
		copy(h.history, h.history[1:])
		h.history = h.history[:h.size-1]
	}
	h.history = append(h.history, v)
}
