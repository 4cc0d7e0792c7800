package capture

import (
	"errors"
	"image"
	"os"
	"sync"
)

// MockSinks records sink activity in memory for testing.
// WriteImage and CreateVideo touch an empty file at path so naming
// collisions behave as they would on disk.
type MockSinks struct {
	// FailCreate makes CreateVideo fail.
	FailCreate bool
	// FailWrite makes WriteImage fail.
	FailWrite bool

	mu      sync.Mutex
	images  []string
	videos  []*MockVideoSink
	creates int
}

func (m *MockSinks) CreateVideo(path, codec string, fps float64, size image.Point) (VideoSink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		return nil, errors.New("mock: create video failed")
	}
	touch(path)

	s := &MockVideoSink{path: path, Codec: codec, FPS: fps, Size: size}
	m.videos = append(m.videos, s)
	m.creates++
	return s, nil
}

func (m *MockSinks) WriteImage(path string, f *Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrite {
		return errors.New("mock: write image failed")
	}
	if f.Empty() {
		return ErrEmptyFrame
	}
	touch(path)
	m.images = append(m.images, path)
	return nil
}

// Images returns the paths of written stills.
func (m *MockSinks) Images() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.images...)
}

// Videos returns every created video sink.
func (m *MockSinks) Videos() []*MockVideoSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockVideoSink(nil), m.videos...)
}

// Creates returns how many video sinks were created.
func (m *MockSinks) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

// MockVideoSink counts appended frames.
type MockVideoSink struct {
	Codec string
	FPS   float64
	Size  image.Point

	path   string
	mu     sync.Mutex
	frames int
	closes int
}

func (s *MockVideoSink) Append(f *Frame) error {
	if err := checkGeometry(f, s.Size); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return errors.New("mock: append after close")
	}
	s.frames++
	return nil
}

func (s *MockVideoSink) Path() string {
	return s.path
}

func (s *MockVideoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Frames returns the number of appended frames.
func (s *MockVideoSink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Closes returns how many times Close was called.
func (s *MockVideoSink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func touch(path string) {
	if f, err := os.Create(path); err == nil {
		f.Close()
	}
}
