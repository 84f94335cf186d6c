package geometry

import "math"

const (
	DefaultMinScale  = 0.25
	DefaultMaxScale  = 3.0
	DefaultZoomStep  = 1.25
	DefaultFitMargin = 40.0
)

// Transform maps document space to screen space at a given scale
type Transform struct {
	Scale float64 `json:"scale"`
}

// NewTransform returns a transform, treating a non-positive scale as 1
func NewTransform(scale float64) Transform {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	return Transform{Scale: scale}
}

// ToDoc converts a surface-relative screen point to document space
func (t Transform) ToDoc(p Point) Point {
	return Point{X: p.X / t.Scale, Y: p.Y / t.Scale}
}

// ToScreen converts a document-space point to surface-relative screen space
func (t Transform) ToScreen(p Point) Point {
	return Point{X: p.X * t.Scale, Y: p.Y * t.Scale}
}

// DeltaToDoc converts a screen-space displacement to document space
func (t Transform) DeltaToDoc(d Point) Point {
	return t.ToDoc(d)
}

// RectToScreen converts a document-space rectangle to screen space
func (t Transform) RectToScreen(r Rect) Rect {
	return Rect{
		X:      r.X * t.Scale,
		Y:      r.Y * t.Scale,
		Width:  r.Width * t.Scale,
		Height: r.Height * t.Scale,
	}
}

// SizeToScreen converts a document-space size to screen space
func (t Transform) SizeToScreen(s Size) Size {
	return Size{Width: s.Width * t.Scale, Height: s.Height * t.Scale}
}

// ZoomPolicy bounds the scale and defines the multiplicative zoom step
type ZoomPolicy struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// DefaultZoomPolicy returns 0.25x-3.0x with a 1.25 step
func DefaultZoomPolicy() ZoomPolicy {
	return ZoomPolicy{Min: DefaultMinScale, Max: DefaultMaxScale, Step: DefaultZoomStep}
}

// Clamp bounds scale to [Min, Max]
func (z ZoomPolicy) Clamp(scale float64) float64 {
	if math.IsNaN(scale) {
		return z.Min
	}
	return clamp(scale, z.Min, z.Max)
}

// ZoomIn returns the next larger scale
func (z ZoomPolicy) ZoomIn(scale float64) float64 {
	return z.Clamp(scale * z.Step)
}

// ZoomOut returns the next smaller scale
func (z ZoomPolicy) ZoomOut(scale float64) float64 {
	return z.Clamp(scale / z.Step)
}

// FitWidth computes (containerWidth - padding) / page.Width, clamped.
// A page without a usable width yields scale 1.
func (z ZoomPolicy) FitWidth(containerWidth, padding float64, page Size) float64 {
	if page.Width <= 0 {
		return z.Clamp(1)
	}
	return z.Clamp((containerWidth - padding) / page.Width)
}

// FitPage takes the smaller of the width fit and the height fit
func (z ZoomPolicy) FitPage(container Size, padding float64, page Size) float64 {
	if page.Empty() {
		return z.Clamp(1)
	}
	byWidth := (container.Width - padding) / page.Width
	byHeight := (container.Height - padding) / page.Height
	return z.Clamp(math.Min(byWidth, byHeight))
}
