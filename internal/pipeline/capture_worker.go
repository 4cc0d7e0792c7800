package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/metrics"
)

// Capture worker defaults.
const (
	DefaultPrefix         = "cam0"
	DefaultImageDir       = "captured_images"
	DefaultVideoDir       = "recorded_videos"
	DefaultFrozenInterval = 33 * time.Millisecond
	DefaultRetryInterval  = 10 * time.Millisecond
	DefaultDeliveryFormat = capture.FormatRGB
)

// CaptureConfig configures a CaptureWorker. Zero fields take defaults.
type CaptureConfig struct {
	Source capture.SourceID
	// Prefix names artifacts, e.g. cam0_capture_20240101_120000.jpg.
	Prefix   string
	ImageDir string
	VideoDir string
	ImageExt string
	VideoExt string
	Codec    string
	// RecordFPS is the frame rate written into recordings.
	RecordFPS float64

	DeliveryFormat capture.PixelFormat
	FrozenInterval time.Duration
	RetryInterval  time.Duration

	Opener   capture.Opener
	Sinks    capture.SinkFactory
	Handlers Handlers
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
}

func (c *CaptureConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.ImageDir == "" {
		c.ImageDir = DefaultImageDir
	}
	if c.VideoDir == "" {
		c.VideoDir = DefaultVideoDir
	}
	if c.ImageExt == "" {
		c.ImageExt = capture.DefaultImageExtension
	}
	if c.VideoExt == "" {
		c.VideoExt = capture.DefaultVideoExtension
	}
	if c.Codec == "" {
		c.Codec = capture.DefaultCodec
	}
	if c.RecordFPS <= 0 {
		c.RecordFPS = capture.DefaultRecordFPS
	}
	if c.DeliveryFormat == "" {
		c.DeliveryFormat = DefaultDeliveryFormat
	}
	if c.FrozenInterval <= 0 {
		c.FrozenInterval = DefaultFrozenInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.Opener == nil {
		c.Opener = capture.OpenVideoSource
	}
	if c.Sinks == nil {
		c.Sinks = capture.FileSinks{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

type command struct {
	run   func() (string, error)
	reply chan result
}

type result struct {
	path string
	err  error
}

// CaptureWorker reads a camera on its own goroutine and delivers frames,
// with freeze, still capture and recording layered on the read loop.
type CaptureWorker struct {
	config CaptureConfig
	log    logrus.FieldLogger

	mu     sync.Mutex // guards stopCh and done
	stopCh chan struct{}
	done   chan struct{}
	cmdCh  chan command

	running   atomic.Bool
	frozen    atomic.Bool
	recording atomic.Bool
	freezeGen atomic.Uint64

	// owned by the run loop
	source      capture.FrameSource
	retained    *capture.Frame
	snapshot    *capture.Frame
	snapshotGen uint64
	sink        capture.VideoSink
	ended       bool
}

// NewCaptureWorker creates a stopped worker.
func NewCaptureWorker(config CaptureConfig) *CaptureWorker {
	config.setDefaults()
	return &CaptureWorker{
		config: config,
		log: config.Logger.WithFields(logrus.Fields{
			"worker": "capture",
			"source": config.Source.String(),
		}),
		cmdCh: make(chan command),
	}
}

// Start opens the source and launches the read loop.
// Starting a running worker is a no-op.
func (w *CaptureWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopCh != nil {
		return nil
	}

	if err := w.open(); err != nil {
		return err
	}
	w.ended = false

	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.running.Store(true)
	go w.run(w.stopCh, w.done)

	w.log.Info("Capture worker started")
	return nil
}

func (w *CaptureWorker) open() error {
	src, err := w.config.Opener(w.config.Source)
	if err != nil {
		w.report(capture.ErrSourceUnavailable, err)
		return err
	}
	w.source = src
	return nil
}

// Stop ends the read loop and waits for it to release the source and any
// open recording. Stopping a stopped worker is a no-op.
func (w *CaptureWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.done
	w.stopCh = nil
	w.done = nil

	w.log.Info("Capture worker stopped")
}

func (w *CaptureWorker) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer w.cleanup()

	if d := w.source.Interval(); d > 0 && !w.wait(stopCh, d) {
		return
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if !w.wait(stopCh, w.tick()) {
			return
		}
	}
}

// wait serves commands for d and reports false once stop is signalled.
func (w *CaptureWorker) wait(stopCh <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stopCh:
			return false
		case cmd := <-w.cmdCh:
			w.exec(cmd)
		default:
		}
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return false
		case cmd := <-w.cmdCh:
			w.exec(cmd)
		case <-timer.C:
			return true
		}
	}
}

func (w *CaptureWorker) exec(cmd command) {
	path, err := cmd.run()
	cmd.reply <- result{path: path, err: err}
}

// tick runs one loop iteration and returns how long to wait before the next.
func (w *CaptureWorker) tick() time.Duration {
	if w.frozen.Load() {
		w.refreshSnapshot()
		if w.snapshot != nil {
			w.deliver(w.snapshot)
		}
		return w.config.FrozenInterval
	}

	if w.snapshot != nil {
		w.snapshot.Close()
		w.snapshot = nil
	}

	if w.ended {
		if w.retained != nil {
			w.deliver(w.retained)
		}
		return w.config.FrozenInterval
	}

	frame, err := w.source.Read()
	if errors.Is(err, capture.ErrEndOfStream) {
		w.endOfStream()
		return w.config.FrozenInterval
	}
	if err != nil {
		w.config.Metrics.ReadError()
		w.log.WithError(err).Debug("Skipping frame")
		return w.config.RetryInterval
	}
	w.config.Metrics.FrameRead()

	if w.retained != nil {
		w.retained.Close()
	}
	w.retained = frame

	if w.sink != nil {
		if err := w.sink.Append(frame); err != nil {
			w.abortRecording(err)
		}
	}

	w.deliver(frame)
	return w.source.Interval()
}

// endOfStream releases an exhausted file source. The last frame stays
// retained and keeps being delivered so stills can still be taken from it.
func (w *CaptureWorker) endOfStream() {
	w.ended = true
	w.closeSink()
	if err := w.source.Close(); err != nil {
		w.log.WithError(err).Warn("Error closing source")
	}
	w.source = nil
	w.log.Info("End of stream, holding last frame")
}

// refreshSnapshot copies the retained frame once per freeze.
func (w *CaptureWorker) refreshSnapshot() {
	gen := w.freezeGen.Load()
	if gen == w.snapshotGen && w.snapshot != nil {
		return
	}
	if w.snapshot != nil {
		w.snapshot.Close()
		w.snapshot = nil
	}
	if w.retained != nil {
		w.snapshot = w.retained.Clone()
	}
	w.snapshotGen = gen
}

func (w *CaptureWorker) deliver(f *capture.Frame) {
	out, err := f.Convert(w.config.DeliveryFormat)
	if err != nil {
		w.log.WithError(err).Warn("Failed to convert frame")
		return
	}
	w.config.Metrics.FrameDelivered()
	w.config.Handlers.frame(out)
}

// ToggleFreeze flips the frozen state and returns the new value.
// While frozen the source is not read and the frame retained at the moment
// of freezing is re-delivered. A stopped worker stays unfrozen.
func (w *CaptureWorker) ToggleFreeze() bool {
	if !w.running.Load() {
		return false
	}
	for {
		old := w.frozen.Load()
		if w.frozen.CompareAndSwap(old, !old) {
			if !old {
				w.freezeGen.Add(1)
			}
			w.log.WithField("frozen", !old).Debug("Freeze toggled")
			return !old
		}
	}
}

// CaptureStill writes the retained frame as an image and returns its path.
// It returns "" and no error when no frame has been read yet.
func (w *CaptureWorker) CaptureStill() (string, error) {
	return w.do(w.captureStill)
}

func (w *CaptureWorker) captureStill() (string, error) {
	if w.retained == nil {
		return "", nil
	}

	now := time.Now()
	path, err := capture.ArtifactPath(w.config.ImageDir, w.config.Prefix, capture.KindCapture, now, w.config.ImageExt)
	if err == nil {
		err = w.config.Sinks.WriteImage(path, w.retained)
	}
	if err != nil {
		return "", w.report(ErrSinkCreateFailed, err)
	}

	w.config.Metrics.ImageSaved()
	w.log.WithField("path", path).Info("Image captured")
	w.config.Handlers.artifact(Artifact{
		Path:      path,
		Kind:      KindImage,
		Camera:    w.config.Prefix,
		CreatedAt: now,
	})
	return path, nil
}

// ToggleRecording starts a recording sized to the retained frame and returns
// its path, or stops the active recording and returns "".
func (w *CaptureWorker) ToggleRecording() (string, error) {
	return w.do(w.toggleRecording)
}

func (w *CaptureWorker) toggleRecording() (string, error) {
	if w.sink != nil {
		w.closeSink()
		return "", nil
	}
	if w.ended {
		return "", capture.ErrEndOfStream
	}
	if w.retained == nil {
		return "", ErrNoFrame
	}

	now := time.Now()
	path, err := capture.ArtifactPath(w.config.VideoDir, w.config.Prefix, capture.KindVideo, now, w.config.VideoExt)
	if err != nil {
		return "", w.report(ErrSinkCreateFailed, err)
	}
	sink, err := w.config.Sinks.CreateVideo(path, w.config.Codec, w.config.RecordFPS, w.retained.Size())
	if err != nil {
		return "", w.report(ErrSinkCreateFailed, err)
	}

	w.sink = sink
	w.recording.Store(true)
	w.config.Metrics.SetRecording(true)
	w.config.Metrics.VideoSaved()
	w.log.WithField("path", path).Info("Recording started")
	w.config.Handlers.artifact(Artifact{
		Path:      path,
		Kind:      KindVideo,
		Camera:    w.config.Prefix,
		CreatedAt: now,
	})
	return path, nil
}

func (w *CaptureWorker) closeSink() {
	if w.sink == nil {
		return
	}
	path := w.sink.Path()
	if err := w.sink.Close(); err != nil {
		w.log.WithError(err).WithField("path", path).Warn("Error closing recording")
	}
	w.sink = nil
	w.recording.Store(false)
	w.config.Metrics.SetRecording(false)
	w.log.WithField("path", path).Info("Recording stopped")
}

// abortRecording ends the session after a failed append.
func (w *CaptureWorker) abortRecording(err error) {
	w.closeSink()
	kind := ErrSinkCreateFailed
	if errors.Is(err, capture.ErrGeometryMismatch) {
		kind = capture.ErrGeometryMismatch
	}
	w.report(kind, err)
}

// do runs fn on the loop goroutine.
func (w *CaptureWorker) do(fn func() (string, error)) (string, error) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done == nil {
		return "", ErrNotRunning
	}

	cmd := command{run: fn, reply: make(chan result, 1)}
	select {
	case w.cmdCh <- cmd:
	case <-done:
		return "", ErrNotRunning
	}

	r := <-cmd.reply
	return r.path, r.err
}

func (w *CaptureWorker) report(kind, err error) error {
	werr := &WorkerError{
		Worker: "capture",
		Source: w.config.Source,
		Kind:   kind,
		Err:    err,
	}
	w.log.WithError(err).Warn(kind.Error())
	w.config.Handlers.sourceError(werr)
	return werr
}

func (w *CaptureWorker) cleanup() {
	w.closeSink()
	if w.source != nil {
		if err := w.source.Close(); err != nil {
			w.log.WithError(err).Warn("Error closing source")
		}
		w.source = nil
	}
	if w.retained != nil {
		w.retained.Close()
		w.retained = nil
	}
	if w.snapshot != nil {
		w.snapshot.Close()
		w.snapshot = nil
	}
	w.frozen.Store(false)
	w.running.Store(false)
}

// Running reports whether the read loop is active.
func (w *CaptureWorker) Running() bool {
	return w.running.Load()
}

// Frozen reports whether display is frozen.
func (w *CaptureWorker) Frozen() bool {
	return w.frozen.Load()
}

// Recording reports whether a recording is open.
func (w *CaptureWorker) Recording() bool {
	return w.recording.Load()
}

// Source returns the configured source.
func (w *CaptureWorker) Source() capture.SourceID {
	return w.config.Source
}

func (w *CaptureWorker) String() string {
	return fmt.Sprintf("capture(%s)", w.config.Source)
}
