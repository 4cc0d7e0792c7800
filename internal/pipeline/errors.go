// Package pipeline runs the capture and detection workers that move frames
// from sources to consumers.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/ayusman/crabwatch/internal/capture"
)

// Worker errors.
var (
	// ErrSourceReadFailed reports a detection source that stopped producing frames.
	ErrSourceReadFailed = errors.New("source read failed")
	// ErrSinkCreateFailed reports a still or video that could not be written.
	ErrSinkCreateFailed = errors.New("sink create failed")
	// ErrNoFrame is returned by commands that need a frame before one was read.
	ErrNoFrame = errors.New("no frame captured yet")
	// ErrNotRunning is returned by commands sent to a stopped worker.
	ErrNotRunning = errors.New("worker is not running")
	// ErrAlreadyRunning is returned when starting a running detection worker.
	ErrAlreadyRunning = errors.New("worker is already running")
)

// WorkerError is the error passed to Handlers.OnSourceError.
// errors.Is matches both Kind and the underlying cause.
type WorkerError struct {
	Worker string
	Source capture.SourceID
	Kind   error
	Err    error
}

func (e *WorkerError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s worker (%s): %v", e.Worker, e.Source, e.Kind)
	}
	return fmt.Sprintf("%s worker (%s): %v: %v", e.Worker, e.Source, e.Kind, e.Err)
}

func (e *WorkerError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
