package capture

import (
	"testing"

	"gocv.io/x/gocv"
)

func newSolidFrame(b, g, r float64) *Frame {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), 4, 6, gocv.MatTypeCV8UC3)
	return NewFrame(mat, 1)
}

func TestFrame_Geometry(t *testing.T) {
	f := newSolidFrame(0, 0, 0)
	defer f.Close()

	if f.Width() != 6 || f.Height() != 4 || f.Channels() != 3 {
		t.Errorf("geometry = %dx%dx%d, want 6x4x3", f.Width(), f.Height(), f.Channels())
	}
	if f.Format != FormatBGR {
		t.Errorf("Format = %s, want BGR", f.Format)
	}
	if f.Empty() {
		t.Error("Empty() = true for a filled frame")
	}
}

func TestFrame_Convert(t *testing.T) {
	f := newSolidFrame(10, 20, 30)
	defer f.Close()

	tests := []struct {
		name     string
		to       PixelFormat
		wantFmt  PixelFormat
		wantChan int
		wantPx   []uint8
	}{
		{"to rgb swaps channels", FormatRGB, FormatRGB, 3, []uint8{30, 20, 10}},
		{"same format clones", FormatBGR, FormatBGR, 3, []uint8{10, 20, 30}},
		{"empty target clones", "", FormatBGR, 3, []uint8{10, 20, 30}},
		{"to gray", FormatGray, FormatGray, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.Convert(tt.to)
			if err != nil {
				t.Fatalf("Convert(%s) error = %v", tt.to, err)
			}
			defer out.Close()

			if out.Format != tt.wantFmt {
				t.Errorf("Format = %s, want %s", out.Format, tt.wantFmt)
			}
			if out.Channels() != tt.wantChan {
				t.Errorf("Channels() = %d, want %d", out.Channels(), tt.wantChan)
			}
			if out.Seq != f.Seq || !out.Timestamp.Equal(f.Timestamp) {
				t.Error("Convert should keep sequence and timestamp")
			}
			if tt.wantPx != nil {
				px := out.Mat.GetVecbAt(0, 0)
				for i, v := range tt.wantPx {
					if px[i] != v {
						t.Errorf("pixel[%d] = %d, want %d", i, px[i], v)
					}
				}
			}
		})
	}

	// the source is left untouched
	px := f.Mat.GetVecbAt(0, 0)
	if px[0] != 10 || px[2] != 30 {
		t.Errorf("source pixel changed to %v", px)
	}
}

func TestFrame_ConvertUnsupported(t *testing.T) {
	f := newSolidFrame(0, 0, 0)
	defer f.Close()

	gray, err := f.Convert(FormatGray)
	if err != nil {
		t.Fatalf("Convert(GRAY) error = %v", err)
	}
	defer gray.Close()

	if _, err := gray.Convert(FormatRGB); err == nil {
		t.Error("Convert(GRAY -> RGB) should be rejected")
	}
}

func TestFrame_Close(t *testing.T) {
	f := newSolidFrame(1, 2, 3)

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !f.Empty() {
		t.Error("Empty() should be true after Close")
	}
	if _, err := f.Convert(FormatRGB); err != ErrEmptyFrame {
		t.Errorf("Convert() after Close error = %v, want ErrEmptyFrame", err)
	}

	var nilFrame *Frame
	if !nilFrame.Empty() {
		t.Error("nil frame should be empty")
	}
}
