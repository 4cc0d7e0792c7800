package capture

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"
)

// ErrGeometryMismatch is returned when a frame does not match the sink size.
var ErrGeometryMismatch = errors.New("frame geometry does not match sink")

// Artifact defaults.
const (
	DefaultCodec          = "XVID"
	DefaultRecordFPS      = 20.0
	DefaultVideoExtension = ".avi"
	DefaultImageExtension = ".jpg"

	KindCapture = "capture"
	KindVideo   = "video"

	timestampLayout = "20060102_150405"
)

// VideoSink appends frames of a fixed geometry to an encoded video file.
type VideoSink interface {
	Append(f *Frame) error
	Path() string
	Close() error
}

// SinkFactory creates video sinks and writes still images.
type SinkFactory interface {
	CreateVideo(path, codec string, fps float64, size image.Point) (VideoSink, error)
	WriteImage(path string, f *Frame) error
}

// ArtifactPath returns a free path of the form
// {dir}/{prefix}_{kind}_{YYYYMMDD_HHMMSS}{ext}. When that name is taken a
// counter is appended before the extension. dir is created if missing.
func ArtifactPath(dir, prefix, kind string, ts time.Time, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	base := fmt.Sprintf("%s_%s_%s", prefix, kind, ts.Format(timestampLayout))
	path := filepath.Join(dir, base+ext)
	for n := 1; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
	return path, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// checkGeometry reports ErrGeometryMismatch when f differs from size.
func checkGeometry(f *Frame, size image.Point) error {
	if f.Empty() {
		return ErrEmptyFrame
	}
	if got := f.Size(); got != size {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrGeometryMismatch, got.X, got.Y, size.X, size.Y)
	}
	return nil
}
