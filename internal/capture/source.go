package capture

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Source errors.
var (
	// ErrSourceUnavailable is returned when a device or file cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrReadFailed is returned when a single read produces no frame.
	ErrReadFailed = errors.New("read failed")
	// ErrEndOfStream is returned once a file source has no frames left.
	ErrEndOfStream = errors.New("end of stream")
	// ErrSourceClosed is returned when reading from a closed source.
	ErrSourceClosed = errors.New("source is closed")
)

// Default capture settings.
const (
	DefaultWidth    = 640
	DefaultHeight   = 480
	DefaultInterval = 33 * time.Millisecond
)

// SourceID identifies a video source: a camera device index or a file path.
type SourceID struct {
	Device int
	Path   string
}

// Device returns the SourceID of camera device n.
func Device(n int) SourceID {
	return SourceID{Device: n}
}

// File returns the SourceID of a video file.
func File(path string) SourceID {
	return SourceID{Path: path}
}

// ParseSourceID parses a source string. A string of digits names a device
// index, anything else is taken as a file path.
func ParseSourceID(s string) (SourceID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SourceID{}, errors.New("empty source")
	}
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return SourceID{}, err
		}
		return Device(n), nil
	}
	return File(s), nil
}

// IsFile reports whether the id names a file.
func (id SourceID) IsFile() bool {
	return id.Path != ""
}

func (id SourceID) String() string {
	if id.IsFile() {
		return id.Path
	}
	return strconv.Itoa(id.Device)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FrameSource delivers decoded frames from a device or a file.
//
// Read returns a new Frame owned by the caller. File sources return
// ErrEndOfStream when exhausted; every other failure wraps ErrReadFailed.
// Interval is the pacing delay between reads: zero for devices, which block
// in Read until the next frame is ready.
type FrameSource interface {
	Read() (*Frame, error)
	FPS() float64
	Interval() time.Duration
	ID() SourceID
	Close() error
}

// Opener opens a FrameSource. Failures wrap ErrSourceUnavailable.
type Opener func(id SourceID) (FrameSource, error)

// PacingInterval returns the delay between frames of a stream recorded at fps.
// Unknown or non-positive rates fall back to DefaultInterval.
func PacingInterval(fps float64) time.Duration {
	if fps <= 0 || math.IsNaN(fps) {
		return DefaultInterval
	}
	d := time.Duration(float64(time.Second) / fps)
	if d <= 0 {
		return DefaultInterval
	}
	return d
}
