// Package app wires the capture and detection workers to their consumers.
package app

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/detector"
	"github.com/ayusman/crabwatch/internal/metrics"
	"github.com/ayusman/crabwatch/internal/pipeline"
	"github.com/ayusman/crabwatch/internal/store"
)

// DefaultDisplaySlots is the number of camera views fed by one capture worker.
const DefaultDisplaySlots = 3

var (
	// ErrStopped is returned when starting an app that was already stopped.
	ErrStopped = errors.New("app is stopped")
	// ErrInvalidSource is returned for a detection source that cannot be parsed.
	ErrInvalidSource = errors.New("invalid source")
)

// Config holds configuration options for the application.
type Config struct {
	// Store catalogs artifacts. Optional.
	Store  *store.Store
	Camera capture.SourceID
	Prefix string

	ImageDir  string
	VideoDir  string
	ImageExt  string
	VideoExt  string
	Codec     string
	RecordFPS float64

	DisplaySlots   int
	DeliveryFormat capture.PixelFormat
	FrozenInterval time.Duration
	RetryInterval  time.Duration

	Detector detector.Config
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger

	// Opener and Sinks default to the GoCV implementations.
	Opener capture.Opener
	Sinks  capture.SinkFactory
}

// Status is a snapshot of the pipeline state.
type Status struct {
	Running         bool   `json:"running"`
	Frozen          bool   `json:"frozen"`
	Recording       bool   `json:"recording"`
	Detecting       bool   `json:"detecting"`
	DetectionSource string `json:"detection_source,omitempty"`
	LastCount       int    `json:"last_count"`
}

// App owns the workers and routes their output to mailboxes and subscribers.
type App struct {
	config    Config
	log       logrus.FieldLogger
	capture   *pipeline.CaptureWorker
	detection *pipeline.DetectionSlot
	detector  detector.Detector
	displays  []*pipeline.Mailbox
	annotated *pipeline.Mailbox
	lastCount atomic.Int64

	// lifecycle serializes Start and Stop. Worker handlers publish under mu,
	// so mu is never held while a worker starts or stops.
	lifecycle sync.Mutex
	started   bool

	mu      sync.RWMutex
	subs    map[string]chan Event
	stopped bool
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.DisplaySlots <= 0 {
		config.DisplaySlots = DefaultDisplaySlots
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	a := &App{
		config:    config,
		log:       config.Logger,
		annotated: pipeline.NewMailbox(),
		subs:      make(map[string]chan Event),
	}

	d, err := detector.NewColorDetector(config.Detector)
	if err != nil {
		a.log.WithError(err).Warn("Invalid detector config, using defaults")
		d, _ = detector.NewColorDetector(detector.DefaultConfig())
	}
	a.detector = d

	for i := 0; i < config.DisplaySlots; i++ {
		a.displays = append(a.displays, pipeline.NewMailbox())
	}
	a.registerDrops()

	a.capture = pipeline.NewCaptureWorker(pipeline.CaptureConfig{
		Source:         config.Camera,
		Prefix:         config.Prefix,
		ImageDir:       config.ImageDir,
		VideoDir:       config.VideoDir,
		ImageExt:       config.ImageExt,
		VideoExt:       config.VideoExt,
		Codec:          config.Codec,
		RecordFPS:      config.RecordFPS,
		DeliveryFormat: config.DeliveryFormat,
		FrozenInterval: config.FrozenInterval,
		RetryInterval:  config.RetryInterval,
		Opener:         config.Opener,
		Sinks:          config.Sinks,
		Metrics:        config.Metrics,
		Logger:         config.Logger,
		Handlers: pipeline.Handlers{
			OnFrame:         a.onFrame,
			OnArtifactSaved: a.onArtifact,
			OnSourceError:   a.onSourceError,
		},
	})

	a.detection = pipeline.NewDetectionSlot(pipeline.DetectionConfig{
		Detector:       a.detector,
		DeliveryFormat: config.DeliveryFormat,
		Opener:         config.Opener,
		Metrics:        config.Metrics,
		Logger:         config.Logger,
		Handlers: pipeline.Handlers{
			OnAnnotatedFrame: a.onAnnotated,
			OnSourceError:    a.onSourceError,
		},
	})

	return a
}

func (a *App) registerDrops() {
	for i, mb := range a.displays {
		if err := a.config.Metrics.RegisterDrops(fmt.Sprintf("display-%d", i), mb.Drops); err != nil {
			a.log.WithError(err).Warn("Failed to register mailbox metric")
		}
	}
	if err := a.config.Metrics.RegisterDrops("detection", a.annotated.Drops); err != nil {
		a.log.WithError(err).Warn("Failed to register mailbox metric")
	}
}

// Start syncs the artifact catalog with the output directories and starts
// the capture worker.
func (a *App) Start() error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.isStopped() {
		return ErrStopped
	}
	if a.started {
		return nil
	}

	a.importArtifacts()

	if err := a.capture.Start(); err != nil {
		return err
	}
	a.started = true

	a.log.Info("Pipeline started")
	return nil
}

func (a *App) importArtifacts() {
	if a.config.Store == nil {
		return
	}

	dirs := []struct {
		dir  string
		kind string
		exts []string
	}{
		{a.dirOr(a.config.ImageDir, pipeline.DefaultImageDir), store.KindImage, store.ImageExtensions},
		{a.dirOr(a.config.VideoDir, pipeline.DefaultVideoDir), store.KindVideo, store.VideoExtensions},
	}
	for _, d := range dirs {
		n, err := a.config.Store.Artifacts().Import(d.dir, d.kind, d.exts)
		if err != nil {
			a.log.WithError(err).WithField("path", d.dir).Warn("Failed to import artifacts")
			continue
		}
		if n > 0 {
			a.log.WithFields(logrus.Fields{"path": d.dir, "count": n}).Info("Imported existing artifacts")
		}
	}
}

func (a *App) isStopped() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopped
}

func (a *App) dirOr(dir, def string) string {
	if dir == "" {
		return def
	}
	return dir
}

// Stop halts both workers and releases mailboxes, subscribers and the detector.
// A stopped App cannot be restarted.
func (a *App) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	a.detection.Stop()
	a.capture.Stop()

	for _, mb := range a.displays {
		mb.Close()
	}
	a.annotated.Close()

	if err := a.detector.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing detector")
	}

	a.mu.Lock()
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
	a.mu.Unlock()

	a.log.Info("Pipeline stopped")
}

// ToggleFreeze freezes or resumes the camera views and returns the new state.
func (a *App) ToggleFreeze() bool {
	frozen := a.capture.ToggleFreeze()
	a.publishState()
	return frozen
}

// CaptureStill saves the current camera frame and returns its path.
func (a *App) CaptureStill() (string, error) {
	return a.capture.CaptureStill()
}

// ToggleRecording starts or stops a recording. A start returns the path.
func (a *App) ToggleRecording() (string, error) {
	path, err := a.capture.ToggleRecording()
	if err == nil {
		a.publishState()
	}
	return path, err
}

// StartDetection runs the detector on source, a device index or file path,
// replacing any running detection.
func (a *App) StartDetection(source string) error {
	id, err := capture.ParseSourceID(source)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSource, source, err)
	}
	if err := a.detection.Start(id); err != nil {
		return err
	}
	a.publishState()
	return nil
}

// StopDetection stops the running detection, if any.
func (a *App) StopDetection() {
	a.detection.Stop()
	a.publishState()
}

// Status returns a snapshot of the pipeline state.
func (a *App) Status() Status {
	st := Status{
		Running:   a.capture.Running(),
		Frozen:    a.capture.Frozen(),
		Recording: a.capture.Recording(),
		LastCount: int(a.lastCount.Load()),
	}
	if id, ok := a.detection.Source(); ok {
		st.Detecting = true
		st.DetectionSource = id.String()
	}
	return st
}

// Display returns the mailbox of camera view n.
func (a *App) Display(n int) (*pipeline.Mailbox, bool) {
	if n < 0 || n >= len(a.displays) {
		return nil, false
	}
	return a.displays[n], true
}

// DisplaySlots returns the number of camera views.
func (a *App) DisplaySlots() int {
	return len(a.displays)
}

// Annotated returns the mailbox of detection output.
func (a *App) Annotated() *pipeline.Mailbox {
	return a.annotated
}

// Store returns the artifact catalog, or nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Metrics returns the metrics collector, or nil.
func (a *App) Metrics() *metrics.Metrics {
	return a.config.Metrics
}
