package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory frames for testing.
type MockSource struct {
	id       SourceID
	frames   []gocv.Mat
	index    int
	loop     bool
	interval time.Duration
	fps      float64
	failNext int
	reads    int
	closed   bool
	onClose  func(SourceID)
	mu       sync.Mutex
}

// NewMockSource returns a source that yields clones of frames in order.
// Without loop it reports ErrEndOfStream after the last frame.
func NewMockSource(id SourceID, frames []gocv.Mat, loop bool) *MockSource {
	return &MockSource{
		id:     id,
		frames: frames,
		loop:   loop,
	}
}

// SetInterval sets the pacing interval reported to workers.
func (s *MockSource) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// FailReads makes the next n reads fail with ErrReadFailed.
func (s *MockSource) FailReads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// OnClose registers a hook called when the source is closed.
func (s *MockSource) OnClose(fn func(SourceID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

func (s *MockSource) Read() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}
	s.reads++

	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("mock %s: %w", s.id, ErrReadFailed)
	}

	if s.index >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, ErrEndOfStream
		}
		s.index = 0
	}

	// Clone so the caller can close it without touching the script
	mat := s.frames[s.index].Clone()
	s.index++

	return NewFrame(mat, uint64(s.reads)), nil
}

func (s *MockSource) FPS() float64 {
	return s.fps
}

func (s *MockSource) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *MockSource) ID() SourceID {
	return s.id
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	fn := s.onClose
	s.mu.Unlock()

	if fn != nil {
		fn(s.id)
	}
	return nil
}

// Reads returns the number of Read calls made while open.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close has been called.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockOpener hands out MockSources and records open/close order.
type MockOpener struct {
	// Frames are the frames every opened source plays back.
	Frames []gocv.Mat
	// Loop makes opened sources repeat their frames.
	Loop bool
	// Interval is applied to every opened source.
	Interval time.Duration
	// Fail makes Open return ErrSourceUnavailable for matching ids.
	Fail func(SourceID) bool

	mu      sync.Mutex
	sources []*MockSource
	events  []string
}

// Open implements Opener.
func (o *MockOpener) Open(id SourceID) (FrameSource, error) {
	if o.Fail != nil && o.Fail(id) {
		return nil, fmt.Errorf("open %s: %w", id, ErrSourceUnavailable)
	}

	src := NewMockSource(id, o.Frames, o.Loop)
	src.SetInterval(o.Interval)
	src.OnClose(func(id SourceID) {
		o.record("close " + id.String())
	})

	o.mu.Lock()
	o.sources = append(o.sources, src)
	o.mu.Unlock()
	o.record("open " + id.String())

	return src, nil
}

func (o *MockOpener) record(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

// Events returns the ordered open/close log, e.g. "open a.mp4", "close a.mp4".
func (o *MockOpener) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// Sources returns every source opened so far.
func (o *MockOpener) Sources() []*MockSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*MockSource(nil), o.sources...)
}
