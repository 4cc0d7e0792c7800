package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/detector"
	"github.com/ayusman/crabwatch/internal/metrics"
)

// DetectionConfig configures detection workers. Zero fields take defaults.
type DetectionConfig struct {
	Detector       detector.Detector
	DeliveryFormat capture.PixelFormat
	Opener         capture.Opener
	Handlers       Handlers
	Metrics        *metrics.Metrics
	Logger         logrus.FieldLogger
}

func (c *DetectionConfig) setDefaults() {
	if c.Detector == nil {
		// the default config always validates
		c.Detector, _ = detector.NewColorDetector(detector.DefaultConfig())
	}
	if c.DeliveryFormat == "" {
		c.DeliveryFormat = DefaultDeliveryFormat
	}
	if c.Opener == nil {
		c.Opener = capture.OpenVideoSource
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// DetectionWorker reads one source, runs the detector on every frame and
// delivers the annotated result. It ends on its own at end of stream or
// after a read failure.
type DetectionWorker struct {
	config DetectionConfig
	log    logrus.FieldLogger

	mu      sync.Mutex // guards stopCh, done and id
	stopCh  chan struct{}
	done    chan struct{}
	id      capture.SourceID
	running atomic.Bool

	source capture.FrameSource
}

// NewDetectionWorker creates a stopped worker.
func NewDetectionWorker(config DetectionConfig) *DetectionWorker {
	config.setDefaults()
	return &DetectionWorker{
		config: config,
		log:    config.Logger.WithField("worker", "detection"),
	}
}

// Start opens id and launches the detection loop.
func (w *DetectionWorker) Start(id capture.SourceID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running.Load() {
		return ErrAlreadyRunning
	}
	// reap a loop that ended by itself
	w.stopLocked()

	w.id = id
	log := w.log.WithField("source", id.String())

	src, err := w.config.Opener(id)
	if err != nil {
		w.report(capture.ErrSourceUnavailable, err)
		return err
	}
	w.source = src

	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.running.Store(true)
	go w.run(w.stopCh, w.done, log)

	log.Info("Detection worker started")
	return nil
}

// Stop ends the loop and waits for the source to be closed.
// It is safe after the loop ended by itself and on a stopped worker.
func (w *DetectionWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *DetectionWorker) stopLocked() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.done
	w.stopCh = nil
	w.done = nil
}

func (w *DetectionWorker) run(stopCh <-chan struct{}, done chan<- struct{}, log logrus.FieldLogger) {
	defer close(done)
	defer w.cleanup(log)

	interval := w.source.Interval()
	if interval > 0 && !sleep(stopCh, interval) {
		return
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if !w.tick(log) {
			return
		}
		if !sleep(stopCh, interval) {
			return
		}
	}
}

// tick processes one frame and reports whether the loop should continue.
func (w *DetectionWorker) tick(log logrus.FieldLogger) bool {
	frame, err := w.source.Read()
	if errors.Is(err, capture.ErrEndOfStream) {
		log.Info("End of stream")
		return false
	}
	if err != nil {
		w.config.Metrics.ReadError()
		w.report(ErrSourceReadFailed, err)
		return false
	}
	defer frame.Close()
	w.config.Metrics.FrameRead()

	annotated, err := w.config.Detector.Detect(frame)
	if err != nil {
		log.WithError(err).Warn("Detection failed, skipping frame")
		return true
	}
	w.config.Metrics.Detection(annotated.Count)

	out, err := annotated.Frame.Convert(w.config.DeliveryFormat)
	annotated.Frame.Close()
	if err != nil {
		log.WithError(err).Warn("Failed to convert frame")
		return true
	}
	annotated.Frame = out

	w.config.Metrics.FrameDelivered()
	w.config.Handlers.annotated(annotated)
	return true
}

func (w *DetectionWorker) report(kind, err error) {
	w.log.WithError(err).Warn(kind.Error())
	w.config.Handlers.sourceError(&WorkerError{
		Worker: "detection",
		Source: w.id,
		Kind:   kind,
		Err:    err,
	})
}

func (w *DetectionWorker) cleanup(log logrus.FieldLogger) {
	if err := w.source.Close(); err != nil {
		log.WithError(err).Warn("Error closing source")
	}
	w.source = nil
	w.running.Store(false)
	log.Info("Detection worker stopped")
}

// Running reports whether the loop is active.
func (w *DetectionWorker) Running() bool {
	return w.running.Load()
}

// Source returns the id passed to the last Start.
func (w *DetectionWorker) Source() capture.SourceID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// sleep waits d and reports false if stop was signalled first.
func sleep(stopCh <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stopCh:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}
