// Package detector counts colored objects in video frames.
package detector

import (
	"errors"
	"fmt"

	"github.com/ayusman/crabwatch/internal/capture"
)

// Detector defines the interface for frame annotation implementations.
type Detector interface {
	// Detect analyzes a BGR frame and returns an annotated copy.
	// The input frame is never modified and stays owned by the caller.
	Detect(frame *capture.Frame) (*AnnotatedFrame, error)

	// Close releases any resources held by the detector.
	Close() error
}

// BoundingBox is an axis-aligned box around one detected object.
type BoundingBox struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	W     int    `json:"w"`
	H     int    `json:"h"`
	Label string `json:"label"`
}

// Area returns W*H.
func (b BoundingBox) Area() int {
	return b.W * b.H
}

// AnnotatedFrame is a frame with detection overlays and the object count.
// The receiver owns Frame and must Close it.
type AnnotatedFrame struct {
	Frame *capture.Frame
	Count int
	Boxes []BoundingBox
}

// Close releases the annotated pixels.
func (a *AnnotatedFrame) Close() error {
	if a == nil || a.Frame == nil {
		return nil
	}
	return a.Frame.Close()
}

// Config holds the tunables of the color segmentation pipeline.
// Hue uses the OpenCV 8-bit convention (0-180).
type Config struct {
	HueMin        int `yaml:"hue_min"`
	HueMax        int `yaml:"hue_max"`
	SaturationMin int `yaml:"saturation_min"`
	SaturationMax int `yaml:"saturation_max"`
	ValueMin      int `yaml:"value_min"`
	ValueMax      int `yaml:"value_max"`

	// MinArea and MaxArea bound contour area, both exclusive.
	MinArea float64 `yaml:"min_area"`
	MaxArea float64 `yaml:"max_area"`

	OpenKernelSize  int `yaml:"open_kernel_size"`
	CloseKernelSize int `yaml:"close_kernel_size"`
	OpenIterations  int `yaml:"open_iterations"`
	CloseIterations int `yaml:"close_iterations"`

	// Label prefixes the per-object captions ("Crab 1", "Crab 2", ...).
	Label string `yaml:"label"`
}

// DefaultConfig returns the green-object settings.
func DefaultConfig() Config {
	return Config{
		HueMin:          25,
		HueMax:          95,
		SaturationMin:   30,
		SaturationMax:   255,
		ValueMin:        20,
		ValueMax:        255,
		MinArea:         500,
		MaxArea:         50000,
		OpenKernelSize:  7,
		CloseKernelSize: 5,
		OpenIterations:  2,
		CloseIterations: 2,
		Label:           "Crab",
	}
}

// Validate checks that every tunable is in range.
func (c Config) Validate() error {
	var errs []error

	checkRange := func(name string, lo, hi, limit int) {
		if lo < 0 || hi > limit || lo > hi {
			errs = append(errs, fmt.Errorf("%s range [%d,%d] must lie within [0,%d]", name, lo, hi, limit))
		}
	}
	checkRange("hue", c.HueMin, c.HueMax, 180)
	checkRange("saturation", c.SaturationMin, c.SaturationMax, 255)
	checkRange("value", c.ValueMin, c.ValueMax, 255)

	if c.MinArea < 0 || c.MinArea >= c.MaxArea {
		errs = append(errs, fmt.Errorf("area bounds (%g,%g) must satisfy 0 <= min < max", c.MinArea, c.MaxArea))
	}
	kernels := []struct {
		name string
		size int
	}{
		{"open", c.OpenKernelSize},
		{"close", c.CloseKernelSize},
	}
	for _, k := range kernels {
		if k.size < 1 || k.size%2 == 0 {
			errs = append(errs, fmt.Errorf("%s kernel size %d must be odd and >= 1", k.name, k.size))
		}
	}
	if c.OpenIterations < 1 || c.CloseIterations < 1 {
		errs = append(errs, errors.New("morphology iterations must be >= 1"))
	}

	return errors.Join(errs...)
}
