package detector

import (
	"sync"

	"github.com/ayusman/crabwatch/internal/capture"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	boxes  []BoundingBox
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetBoxes sets the boxes that will be returned by Detect.
func (m *MockDetector) SetBoxes(boxes []BoundingBox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes = boxes
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns a copy of frame with the pre-configured boxes, or the error.
func (m *MockDetector) Detect(frame *capture.Frame) (*AnnotatedFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if frame.Empty() {
		return nil, capture.ErrEmptyFrame
	}

	boxes := append([]BoundingBox(nil), m.boxes...)
	return &AnnotatedFrame{
		Frame: frame.Clone(),
		Count: len(boxes),
		Boxes: boxes,
	}, nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
