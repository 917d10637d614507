package imgdiff

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Kind names a comparison policy in configuration.
type Kind string

const (
	KindStrict      Kind = "strict"
	KindIgnoreClear Kind = "ignore_clear_pixels"
	KindTolerance   Kind = "tolerance"
)

// Options selects and parameterises a Comparator.
type Options struct {
	Kind      Kind `yaml:"kind" json:"kind,omitempty"`
	Tolerance int  `yaml:"tolerance" json:"tolerance,omitempty"`
}

// New returns the Comparator named by o. The zero Options selects Strict.
func New(o Options) (Comparator, error) {
	switch o.Kind {
	case "", KindStrict:
		return Strict(), nil
	case KindIgnoreClear:
		return IgnoreClearPixels(), nil
	case KindTolerance:
		if o.Tolerance < 0 || o.Tolerance > 255 {
			return nil, fmt.Errorf("%w: tolerance %d out of range", ErrInvalidArgument, o.Tolerance)
		}
		return Tolerance(uint8(o.Tolerance)), nil
	}
	return nil, fmt.Errorf("%w: unknown comparator %q", ErrInvalidArgument, o.Kind)
}

// maskColor fills excluded areas so both sides compare equal there.
var maskColor = color.NRGBA{A: 0xff}

// Mask returns a copy of img with every rectangle painted a constant color.
// Rectangles are in img's coordinates and are clipped to its bounds.
func Mask(img image.Image, rects []image.Rectangle) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	if n, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := out.PixOffset(b.Min.X, y)
			copy(out.Pix[i:i+b.Dx()*4], n.Pix[n.PixOffset(b.Min.X, y):])
		}
	} else {
		draw.Draw(out, b, img, b.Min, draw.Src)
	}
	fill := image.NewUniform(maskColor)
	for _, r := range rects {
		r = r.Intersect(b)
		if r.Empty() {
			continue
		}
		draw.Draw(out, r, fill, image.Point{}, draw.Src)
	}
	return out
}
