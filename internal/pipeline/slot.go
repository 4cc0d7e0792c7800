package pipeline

import (
	"sync"

	"github.com/ayusman/crabwatch/internal/capture"
)

// DetectionSlot holds at most one detection worker. Starting a new source
// stops the current worker, and waits for its source to close, before the
// next one is opened.
type DetectionSlot struct {
	config  DetectionConfig
	mu      sync.Mutex
	current *DetectionWorker
}

// NewDetectionSlot returns an empty slot whose workers share config.
func NewDetectionSlot(config DetectionConfig) *DetectionSlot {
	config.setDefaults()
	return &DetectionSlot{config: config}
}

// Start replaces the current worker with one reading id.
func (s *DetectionSlot) Start(id capture.SourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}

	w := NewDetectionWorker(s.config)
	if err := w.Start(id); err != nil {
		return err
	}
	s.current = w
	return nil
}

// Stop stops the current worker, if any.
func (s *DetectionSlot) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}

// Active reports whether a worker is running.
func (s *DetectionSlot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.Running()
}

// Source returns the source of the running worker.
func (s *DetectionSlot) Source() (capture.SourceID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.Running() {
		return capture.SourceID{}, false
	}
	return s.current.Source(), true
}
