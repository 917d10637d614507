// Package imgdiff compares two raster regions pixel by pixel and reports the
// mismatches as DiffPoints.
//
// The comparison policy is a strategy: Strict (the default) requires exact
// color equality, IgnoreClearPixels skips pixels that are not fully opaque,
// and Tolerance accepts a bounded per-channel delta.
//
// Usage:
//
//	d, err := imgdiff.Strict().Compare(current, nil, baseline, nil)
//	if d.Failed() { ... }
package imgdiff

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"reflect"
)

// ErrInvalidArgument is returned for nil images or regions outside their image.
var ErrInvalidArgument = errors.New("imgdiff: invalid argument")

// Comparator compares region ra of a with region rb of b. A nil region
// means the whole image. Points are reported in a's coordinate frame.
type Comparator interface {
	Compare(a image.Image, ra *image.Rectangle, b image.Image, rb *image.Rectangle) (*DiffPoints, error)
}

// PixelFunc decides whether two non-premultiplied RGBA pixels match.
// Each argument is a 4-byte slice.
type PixelFunc func(pa, pb []byte) bool

type pixelComparator struct {
	match PixelFunc
}

// Strict requires every channel, alpha included, to be equal.
func Strict() Comparator {
	return pixelComparator{match: func(pa, pb []byte) bool {
		return pa[0] == pb[0] && pa[1] == pb[1] && pa[2] == pb[2] && pa[3] == pb[3]
	}}
}

// IgnoreClearPixels compares only pixels that are fully opaque in both images.
func IgnoreClearPixels() Comparator {
	return pixelComparator{match: func(pa, pb []byte) bool {
		if pa[3] != 0xff || pb[3] != 0xff {
			return true
		}
		return pa[0] == pb[0] && pa[1] == pb[1] && pa[2] == pb[2]
	}}
}

// Tolerance accepts pixels whose channels each differ by at most delta.
func Tolerance(delta uint8) Comparator {
	return pixelComparator{match: func(pa, pb []byte) bool {
		for i := range 4 {
			d := int(pa[i]) - int(pb[i])
			if d < -int(delta) || d > int(delta) {
				return false
			}
		}
		return true
	}}
}

// Func wraps a custom PixelFunc as a Comparator.
func Func(match PixelFunc) Comparator { return pixelComparator{match: match} }

func (c pixelComparator) Compare(a image.Image, ra *image.Rectangle, b image.Image, rb *image.Rectangle) (*DiffPoints, error) {
	if isNil(a) || isNil(b) {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidArgument)
	}
	regA, err := region(a, ra)
	if err != nil {
		return nil, err
	}
	regB, err := region(b, rb)
	if err != nil {
		return nil, err
	}

	na, nb := toNRGBA(a, regA), toNRGBA(b, regB)
	wa, ha := regA.Dx(), regA.Dy()
	wb, hb := regB.Dx(), regB.Dy()
	w, h := min(wa, wb), min(ha, hb)
	off := regA.Min

	var content []image.Point
	for y := range h {
		rowA := na.Pix[y*na.Stride:]
		rowB := nb.Pix[y*nb.Stride:]
		for x := range w {
			i := x * 4
			if !c.match(rowA[i:i+4], rowB[i:i+4]) {
				content = append(content, image.Pt(x+off.X, y+off.Y))
			}
		}
	}

	var size []image.Point
	if wa != wb || ha != hb {
		for y := range max(ha, hb) {
			for x := range max(wa, wb) {
				inA := x < wa && y < ha
				inB := x < wb && y < hb
				if inA != inB {
					size = append(size, image.Pt(x+off.X, y+off.Y))
				}
			}
		}
	}

	return NewDiffPoints(content, size), nil
}

// isNil also catches a nil pointer stored in the interface, such as a
// zero *image.RGBA, whose Bounds would panic.
func isNil(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func region(img image.Image, r *image.Rectangle) (image.Rectangle, error) {
	b := img.Bounds()
	if r == nil {
		return b, nil
	}
	if r.Dx() < 0 || r.Dy() < 0 || !r.In(b) {
		return image.Rectangle{}, fmt.Errorf("%w: region %v outside image %v", ErrInvalidArgument, *r, b)
	}
	return *r, nil
}

// toNRGBA returns the region as an NRGBA image whose Pix starts at the
// region's top-left pixel. NRGBA input is sliced, not converted, so
// translucent colors keep their exact channel values.
func toNRGBA(img image.Image, r image.Rectangle) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n.SubImage(r).(*image.NRGBA)
	}
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
