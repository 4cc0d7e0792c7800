package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// FileSinks writes artifacts to disk with GoCV.
type FileSinks struct{}

// CreateVideo opens a video writer at path sized to size.
func (FileSinks) CreateVideo(path, codec string, fps float64, size image.Point) (VideoSink, error) {
	vw, err := gocv.VideoWriterFile(path, codec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, fmt.Errorf("create video %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("create video %s: writer not opened", path)
	}
	return &fileVideoSink{path: path, size: size, writer: vw}, nil
}

// WriteImage encodes f to path; the format follows the extension.
func (FileSinks) WriteImage(path string, f *Frame) error {
	if f.Empty() {
		return ErrEmptyFrame
	}
	if ok := gocv.IMWrite(path, f.Mat); !ok {
		return fmt.Errorf("write image %s: encoder failed", path)
	}
	return nil
}

type fileVideoSink struct {
	path   string
	size   image.Point
	writer *gocv.VideoWriter
	mu     sync.Mutex
	closed bool
}

func (s *fileVideoSink) Append(f *Frame) error {
	if err := checkGeometry(f, s.size); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("video sink is closed")
	}
	return s.writer.Write(f.Mat)
}

func (s *fileVideoSink) Path() string {
	return s.path
}

func (s *fileVideoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
