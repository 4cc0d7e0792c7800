// Package capture provides frame sources and sinks backed by GoCV (OpenCV).
package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// videoSource reads frames from a camera device or a video file.
type videoSource struct {
	id       SourceID
	capture  *gocv.VideoCapture
	fps      float64
	interval time.Duration
	seq      uint64
	mu       sync.Mutex
	closed   bool
}

// OpenVideoSource opens id with GoCV. Devices request 640x480; files are
// paced to their recorded frame rate.
func OpenVideoSource(id SourceID) (FrameSource, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id.IsFile() {
		vc, err = gocv.VideoCaptureFile(id.Path)
	} else {
		vc, err = gocv.VideoCaptureDevice(id.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %v", id, ErrSourceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open %s: %w", id, ErrSourceUnavailable)
	}

	s := &videoSource{id: id, capture: vc}
	if id.IsFile() {
		s.fps = vc.Get(gocv.VideoCaptureFPS)
		s.interval = PacingInterval(s.fps)
	} else {
		vc.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		vc.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		s.fps = vc.Get(gocv.VideoCaptureFPS)
	}

	return s, nil
}

// Read decodes the next frame. The caller owns the returned Frame.
func (s *videoSource) Read() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok {
		mat.Close()
		if s.id.IsFile() {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read %s: %w", s.id, ErrReadFailed)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("read %s: empty frame: %w", s.id, ErrReadFailed)
	}

	s.seq++
	return NewFrame(mat, s.seq), nil
}

func (s *videoSource) FPS() float64 {
	return s.fps
}

func (s *videoSource) Interval() time.Duration {
	return s.interval
}

func (s *videoSource) ID() SourceID {
	return s.id
}

// Close releases the capture handle. Repeated calls return nil.
func (s *videoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.capture.Close()
}
