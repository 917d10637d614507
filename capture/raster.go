package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// decodePNG decodes a screenshot into a zero-origin RGBA image.
func decodePNG(data []byte) (*image.RGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok && r.Bounds().Min == (image.Point{}) {
		return r
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// trimRows drops top rows from the top and bottom rows from the bottom.
// A trim that would consume the whole image leaves it empty.
func trimRows(img *image.RGBA, top, bottom int) *image.RGBA {
	b := img.Bounds()
	top, bottom = max(top, 0), max(bottom, 0)
	if top+bottom >= b.Dy() {
		return img.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y)).(*image.RGBA)
	}
	return img.SubImage(image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Max.Y-bottom)).(*image.RGBA)
}

// trimLeft drops n columns from the left edge. A trim that would consume
// the whole image is ignored.
func trimLeft(img *image.RGBA, n int) *image.RGBA {
	b := img.Bounds()
	if n <= 0 || n >= b.Dx() {
		return img
	}
	return img.SubImage(image.Rect(b.Min.X+n, b.Min.Y, b.Max.X, b.Max.Y)).(*image.RGBA)
}

// crop returns the part of img inside r, as a zero-origin copy.
func crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

// concatV stacks images top to bottom. The result is as wide as the widest.
func concatV(imgs []*image.RGBA) *image.RGBA {
	w, h := 0, 0
	for _, m := range imgs {
		w = max(w, m.Bounds().Dx())
		h += m.Bounds().Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	y := 0
	for _, m := range imgs {
		b := m.Bounds()
		draw.Draw(out, image.Rect(0, y, b.Dx(), y+b.Dy()), m, b.Min, draw.Src)
		y += b.Dy()
	}
	return out
}

// concatH places images left to right. The result is as tall as the shortest.
func concatH(imgs []*image.RGBA) *image.RGBA {
	if len(imgs) == 1 {
		return imgs[0]
	}
	w, h := 0, imgs[0].Bounds().Dy()
	for _, m := range imgs {
		w += m.Bounds().Dx()
		h = min(h, m.Bounds().Dy())
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	x := 0
	for _, m := range imgs {
		b := m.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), h), m, b.Min, draw.Src)
		x += b.Dx()
	}
	return out
}
