// Package geometry converts between screen pixels and document-space units.
//
// Document space is the unscaled page coordinate system of the PDF (points),
// with a top-left origin. Screen space is document space multiplied by the
// current zoom scale, relative to the rendering surface's bounding box.
package geometry

import "math"

// Point represents a coordinate pair
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add returns p + q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Size represents a width/height pair
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either dimension is non-positive
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect represents an axis-aligned rectangle with a top-left origin
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromCorners builds the rectangle spanned by two arbitrary corners,
// so a drag may run in any direction.
func RectFromCorners(a, b Point) Rect {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Origin returns the top-left corner
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

// Size returns the rectangle dimensions
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Contains reports whether p lies inside r (edges inclusive)
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Intersect clips r to the page bounds [0,page.Width] x [0,page.Height].
func (r Rect) Intersect(page Size) Rect {
	x0 := math.Max(r.X, 0)
	y0 := math.Max(r.Y, 0)
	x1 := math.Min(r.X+r.Width, page.Width)
	y1 := math.Min(r.Y+r.Height, page.Height)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Relative converts an absolute pointer position into a position relative to
// the rendering surface whose top-left corner is at origin.
func Relative(client, origin Point) Point {
	return client.Sub(origin)
}

// ClampPosition keeps a box of the given size inside the page:
// 0 <= x <= page.Width-size.Width, and the same for y. A box larger than the
// page is pinned to the origin.
func ClampPosition(pos Point, size Size, page Size) Point {
	return Point{
		X: clamp(pos.X, 0, math.Max(page.Width-size.Width, 0)),
		Y: clamp(pos.Y, 0, math.Max(page.Height-size.Height, 0)),
	}
}

// ApproxEqual compares two floats within tolerance
func ApproxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
