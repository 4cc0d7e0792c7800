package capture

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// PixelFormat tags the channel layout of a Frame.
type PixelFormat string

// Supported pixel formats.
const (
	FormatBGR  PixelFormat = "BGR"
	FormatRGB  PixelFormat = "RGB"
	FormatGray PixelFormat = "GRAY"
)

// ErrEmptyFrame is returned when an operation needs pixel data and the frame has none.
var ErrEmptyFrame = errors.New("frame is empty")

// Frame is a single decoded image sample with metadata.
// A Frame is owned by whoever received it last and that owner must call Close.
// Stages that need to keep a frame past hand-off take a Clone.
type Frame struct {
	Mat       gocv.Mat
	Format    PixelFormat
	Timestamp time.Time
	Seq       uint64

	closed bool
}

// NewFrame wraps mat as a BGR frame stamped with the current time.
// The frame takes ownership of mat.
func NewFrame(mat gocv.Mat, seq uint64) *Frame {
	return &Frame{
		Mat:       mat,
		Format:    FormatBGR,
		Timestamp: time.Now(),
		Seq:       seq,
	}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.Mat.Cols()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.Mat.Rows()
}

// Channels returns the number of channels per pixel.
func (f *Frame) Channels() int {
	return f.Mat.Channels()
}

// Size returns the frame geometry as width x height.
func (f *Frame) Size() image.Point {
	return image.Pt(f.Mat.Cols(), f.Mat.Rows())
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.closed || f.Mat.Empty()
}

// Clone returns a deep copy of the frame with the same metadata.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Mat:       f.Mat.Clone(),
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}
}

// Convert returns a copy of the frame in the requested pixel format.
// Converting to the frame's own format (or to "") is a plain Clone.
func (f *Frame) Convert(to PixelFormat) (*Frame, error) {
	if f.Empty() {
		return nil, ErrEmptyFrame
	}
	if to == "" || to == f.Format {
		return f.Clone(), nil
	}

	code, ok := conversionCode(f.Format, to)
	if !ok {
		return nil, fmt.Errorf("unsupported conversion %s -> %s", f.Format, to)
	}

	dst := gocv.NewMat()
	gocv.CvtColor(f.Mat, &dst, code)
	if dst.Empty() {
		dst.Close()
		return nil, fmt.Errorf("convert %s -> %s: %w", f.Format, to, ErrEmptyFrame)
	}

	return &Frame{
		Mat:       dst,
		Format:    to,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}, nil
}

// Close releases the pixel buffer. It is safe to call more than once.
func (f *Frame) Close() error {
	if f == nil || f.closed {
		return nil
	}
	f.closed = true
	return f.Mat.Close()
}

func conversionCode(from, to PixelFormat) (gocv.ColorConversionCode, bool) {
	switch {
	case from == FormatBGR && to == FormatRGB, from == FormatRGB && to == FormatBGR:
		// channel swap is symmetric
		return gocv.ColorBGRToRGB, true
	case from == FormatBGR && to == FormatGray:
		return gocv.ColorBGRToGray, true
	case from == FormatGray && to == FormatBGR:
		return gocv.ColorGrayToBGR, true
	}
	return 0, false
}
