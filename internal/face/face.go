// Package face locates face regions in a decoded frame and selects the one
// to crop.
package face

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// Box is an axis-aligned pixel rectangle in XYWH form.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W*H, or 0 for degenerate boxes.
func (b Box) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Rect converts b to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Clamp restricts b to [0,width) x [0,height).
func (b Box) Clamp(width, height int) Box {
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.W, width), min(b.Y+b.H, height)
	if x1 <= x0 || y1 <= y0 {
		return Box{X: x0, Y: y0}
	}
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Candidate is a detector-reported face region. Confidence is nil when the
// detector does not report one.
type Candidate struct {
	Box        Box
	Confidence *float64
}

// Locator produces candidate face regions for an image. Finding no faces is
// not an error. Locators return an error wrapping
// emotion.ErrDetectorUnavailable when their detector cannot be initialized.
type Locator interface {
	Locate(ctx context.Context, img *image.NRGBA) ([]Candidate, error)
}

// SelectBest clamps every candidate to the image, drops those left with no
// area, and returns the largest. Equal areas resolve to the earliest
// candidate. ok is false when nothing usable remains.
func SelectBest(candidates []Candidate, width, height int) (best Box, ok bool) {
	for _, c := range candidates {
		b := c.Box.Clamp(width, height)
		if b.Area() == 0 {
			continue
		}
		if !ok || b.Area() > best.Area() {
			best, ok = b, true
		}
	}
	return best, ok
}

// Crop copies the region b out of img.
func Crop(img *image.NRGBA, b Box) *image.NRGBA {
	return imaging.Crop(img, b.Rect())
}

// Strategy names a Locator implementation.
type Strategy string

const (
	StrategyCascade     Strategy = "cascade"
	StrategyModel       Strategy = "model"
	StrategyPassthrough Strategy = "passthrough"
)

// ParseStrategy validates s against the known strategies.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyCascade, StrategyModel, StrategyPassthrough:
		return st, nil
	}
	return "", fmt.Errorf("unknown face locator strategy %q", s)
}

// NoFacePolicy decides what a face crop request yields when no usable
// candidate is found.
type NoFacePolicy string

const (
	// NoFaceWholeImage returns the full frame as the crop.
	NoFaceWholeImage NoFacePolicy = "whole_image"
	// NoFaceNull returns no crop.
	NoFaceNull NoFacePolicy = "null"
)

// ParseNoFacePolicy validates s; empty resolves to NoFaceWholeImage.
func ParseNoFacePolicy(s string) (NoFacePolicy, error) {
	switch p := NoFacePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return NoFaceWholeImage, nil
	case NoFaceWholeImage, NoFaceNull:
		return p, nil
	}
	return "", fmt.Errorf("unknown no-face policy %q", s)
}
