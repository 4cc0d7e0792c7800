package detector

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	"gocv.io/x/gocv"

	"github.com/ayusman/crabwatch/internal/capture"
)

// Overlay layout.
var (
	CountAnchor = image.Pt(20, 50)

	boxColor     = color.RGBA{0, 255, 0, 0}
	contourColor = color.RGBA{0, 0, 255, 0}
)

const (
	boxThickness     = 2
	contourThickness = 2
	labelScale       = 0.6
	labelThickness   = 2
	labelOffset      = 10
	countScale       = 1.0
	countThickness   = 3
)

// ErrUnsupportedFormat is returned for frames that are not BGR.
var ErrUnsupportedFormat = errors.New("detector requires a BGR frame")

// ColorDetector counts objects inside an HSV color range.
//
// Pipeline:
// 1. BGR to HSV
// 2. InRange mask
// 3. Morphological open, then close
// 4. External contours, filtered by area
// 5. Boxes sorted by top-left (row, then column) and labeled from 1
// 6. Boxes, labels, outlines and the count drawn on a copy of the frame
type ColorDetector struct {
	config      Config
	openKernel  gocv.Mat
	closeKernel gocv.Mat
	lower       gocv.Scalar
	upper       gocv.Scalar
}

// NewColorDetector validates config and prepares the morphology kernels.
func NewColorDetector(config Config) (*ColorDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	return &ColorDetector{
		config:      config,
		openKernel:  gocv.GetStructuringElement(gocv.MorphRect, image.Pt(config.OpenKernelSize, config.OpenKernelSize)),
		closeKernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(config.CloseKernelSize, config.CloseKernelSize)),
		lower:       gocv.NewScalar(float64(config.HueMin), float64(config.SaturationMin), float64(config.ValueMin), 0),
		upper:       gocv.NewScalar(float64(config.HueMax), float64(config.SaturationMax), float64(config.ValueMax), 0),
	}, nil
}

// Config returns the active tunables.
func (d *ColorDetector) Config() Config {
	return d.config
}

// Detect implements Detector.
func (d *ColorDetector) Detect(frame *capture.Frame) (*AnnotatedFrame, error) {
	if frame.Empty() {
		return nil, capture.ErrEmptyFrame
	}
	if frame.Format != capture.FormatBGR || frame.Channels() != 3 {
		return nil, fmt.Errorf("%w: got %s with %d channels", ErrUnsupportedFormat, frame.Format, frame.Channels())
	}

	mask := d.mask(frame.Mat)
	defer mask.Close()

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	type found struct {
		index int
		rect  image.Rectangle
	}
	var objects []found
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area <= d.config.MinArea || area >= d.config.MaxArea {
			continue
		}
		objects = append(objects, found{index: i, rect: gocv.BoundingRect(c)})
	}

	sort.SliceStable(objects, func(a, b int) bool {
		ra, rb := objects[a].rect.Min, objects[b].rect.Min
		if ra.Y != rb.Y {
			return ra.Y < rb.Y
		}
		return ra.X < rb.X
	})

	out := frame.Clone()
	boxes := make([]BoundingBox, 0, len(objects))
	for i, obj := range objects {
		r := obj.rect
		label := fmt.Sprintf("%s %d", d.config.Label, i+1)

		gocv.Rectangle(&out.Mat, r, boxColor, boxThickness)
		gocv.PutText(&out.Mat, label, image.Pt(r.Min.X, r.Min.Y-labelOffset),
			gocv.FontHersheySimplex, labelScale, boxColor, labelThickness)
		gocv.DrawContours(&out.Mat, contours, obj.index, contourColor, contourThickness)

		boxes = append(boxes, BoundingBox{
			X:     r.Min.X,
			Y:     r.Min.Y,
			W:     r.Dx(),
			H:     r.Dy(),
			Label: label,
		})
	}

	gocv.PutText(&out.Mat, fmt.Sprintf("Count: %d", len(boxes)), CountAnchor,
		gocv.FontHersheySimplex, countScale, boxColor, countThickness)

	return &AnnotatedFrame{
		Frame: out,
		Count: len(boxes),
		Boxes: boxes,
	}, nil
}

// mask returns the cleaned binary mask of in-range pixels.
func (d *ColorDetector) mask(src gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv, d.lower, d.upper, &mask)

	// opening removes specks before closing fills holes
	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyExWithParams(mask, &opened, gocv.MorphOpen, d.openKernel, d.config.OpenIterations, gocv.BorderConstant)
	gocv.MorphologyExWithParams(opened, &mask, gocv.MorphClose, d.closeKernel, d.config.CloseIterations, gocv.BorderConstant)

	return mask
}

// Close releases the morphology kernels.
func (d *ColorDetector) Close() error {
	d.openKernel.Close()
	d.closeKernel.Close()
	return nil
}
