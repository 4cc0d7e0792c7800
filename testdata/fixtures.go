// Package testdata builds synthetic frames and clips for tests.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame geometry used by fixtures.
const (
	Width  = 640
	Height = 480
)

// Green is pure BGR green, hue 60 on the OpenCV scale.
var Green = color.RGBA{0, 255, 0, 0}

// BlackFrame returns an all-black BGR frame of the given size.
func BlackFrame(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
}

// SolidFrame returns a BGR frame filled with a single gray level.
func SolidFrame(width, height int, level uint8) gocv.Mat {
	v := float64(level)
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), height, width, gocv.MatTypeCV8UC3)
}

// GreenRects returns a black frame with filled green rectangles.
func GreenRects(width, height int, rects ...image.Rectangle) gocv.Mat {
	mat := BlackFrame(width, height)
	for _, r := range rects {
		gocv.Rectangle(&mat, r, Green, -1)
	}
	return mat
}

// Sequence returns n frames whose gray level equals their index + 1,
// so each frame in a run can be told apart by its first pixel.
func Sequence(n, width, height int) []gocv.Mat {
	frames := make([]gocv.Mat, n)
	for i := range frames {
		frames[i] = SolidFrame(width, height, uint8(i+1))
	}
	return frames
}

// Level returns the blue channel of the top-left pixel.
func Level(mat gocv.Mat) uint8 {
	return mat.GetVecbAt(0, 0)[0]
}

// CloseAll releases every frame.
func CloseAll(frames []gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteClip encodes frames to an MJPG .avi at path.
func WriteClip(path string, fps float64, frames []gocv.Mat) error {
	if len(frames) == 0 {
		return fmt.Errorf("write clip %s: no frames", path)
	}

	vw, err := gocv.VideoWriterFile(path, "MJPG", fps, frames[0].Cols(), frames[0].Rows(), true)
	if err != nil {
		return fmt.Errorf("write clip %s: %w", path, err)
	}
	defer vw.Close()

	for i, f := range frames {
		if err := vw.Write(f); err != nil {
			return fmt.Errorf("write clip %s frame %d: %w", path, i, err)
		}
	}
	return nil
}
