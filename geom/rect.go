// CLAUDE:SUMMARY Page-coordinate rectangle value type with floor/round/move/scale and pixel conversion.
// Package geom holds the geometry value types shared by capture and
// comparison: page-coordinate rectangles and per-side edge widths.
//
// All values are transient and passed by value. Page coordinates are CSS
// pixels; multiply by the device pixel ratio with Scale to get bitmap pixels.
//
// Usage:
//
//	r := geom.Rectangle{X: 10, Y: 20, W: 100.4, H: 50}
//	px := r.Scale(2).Pixels() // image.Rect(20, 40, 221, 140)
package geom

import (
	"fmt"
	"image"
	"math"
)

// Rectangle is an axis-aligned rectangle in page coordinates.
type Rectangle struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"width" yaml:"width"`
	H float64 `json:"height" yaml:"height"`
}

// Rect is shorthand for Rectangle{x, y, w, h}.
func Rect(x, y, w, h float64) Rectangle {
	return Rectangle{X: x, Y: y, W: w, H: h}
}

// FromImage converts a pixel rectangle back to a Rectangle.
func FromImage(r image.Rectangle) Rectangle {
	return Rectangle{X: float64(r.Min.X), Y: float64(r.Min.Y), W: float64(r.Dx()), H: float64(r.Dy())}
}

// Right returns X+W.
func (r Rectangle) Right() float64 { return r.X + r.W }

// Bottom returns Y+H.
func (r Rectangle) Bottom() float64 { return r.Y + r.H }

// Empty reports whether the rectangle has no area.
func (r Rectangle) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Valid reports whether all components are finite and the size is not negative.
func (r Rectangle) Valid() bool {
	for _, v := range [...]float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.W >= 0 && r.H >= 0
}

// Floor truncates every component toward negative infinity.
func (r Rectangle) Floor() Rectangle {
	return Rectangle{X: math.Floor(r.X), Y: math.Floor(r.Y), W: math.Floor(r.W), H: math.Floor(r.H)}
}

// Round rounds every component half-up.
func (r Rectangle) Round() Rectangle {
	return Rectangle{X: roundHalfUp(r.X), Y: roundHalfUp(r.Y), W: roundHalfUp(r.W), H: roundHalfUp(r.H)}
}

// Ceil rounds every component toward positive infinity.
func (r Rectangle) Ceil() Rectangle {
	return Rectangle{X: math.Ceil(r.X), Y: math.Ceil(r.Y), W: math.Ceil(r.W), H: math.Ceil(r.H)}
}

// Move translates the rectangle by (dx, dy).
func (r Rectangle) Move(dx, dy float64) Rectangle {
	r.X += dx
	r.Y += dy
	return r
}

// MoveTo places the top-left corner at (x, y).
func (r Rectangle) MoveTo(x, y float64) Rectangle {
	r.X, r.Y = x, y
	return r
}

// Scale multiplies every component by f and rounds each half-up,
// independently per axis.
func (r Rectangle) Scale(f float64) Rectangle {
	return Rectangle{
		X: roundHalfUp(r.X * f),
		Y: roundHalfUp(r.Y * f),
		W: roundHalfUp(r.W * f),
		H: roundHalfUp(r.H * f),
	}
}

// Grow expands the rectangle outward by e on every side.
func (r Rectangle) Grow(e Edges) Rectangle {
	return Rectangle{
		X: r.X - e.Left,
		Y: r.Y - e.Top,
		W: r.W + e.Left + e.Right,
		H: r.H + e.Top + e.Bottom,
	}
}

// Shrink contracts the rectangle inward by e on every side. Sizes never go
// below zero.
func (r Rectangle) Shrink(e Edges) Rectangle {
	out := Rectangle{
		X: r.X + e.Left,
		Y: r.Y + e.Top,
		W: r.W - e.Left - e.Right,
		H: r.H - e.Top - e.Bottom,
	}
	out.W = math.Max(out.W, 0)
	out.H = math.Max(out.H, 0)
	return out
}

// Intersect returns the overlap of r and o, or an empty rectangle at r's
// origin when they do not overlap.
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	x0, y0 := math.Max(r.X, o.X), math.Max(r.Y, o.Y)
	x1, y1 := math.Min(r.Right(), o.Right()), math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rectangle{X: r.X, Y: r.Y}
	}
	return Rectangle{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Pixels rounds the rectangle and converts it to an image.Rectangle.
func (r Rectangle) Pixels() image.Rectangle {
	rr := r.Round()
	x, y := int(rr.X), int(rr.Y)
	return image.Rect(x, y, x+int(rr.W), y+int(rr.H))
}

func (r Rectangle) String() string {
	return fmt.Sprintf("(%g,%g %gx%g)", r.X, r.Y, r.W, r.H)
}

// roundHalfUp rounds to the nearest integer, ties toward positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// RoundInt is roundHalfUp returning an int, used by capture geometry.
func RoundInt(v float64) int {
	return int(roundHalfUp(v))
}
