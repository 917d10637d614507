// Package diffimage draws the human-readable artifact of a failed
// comparison: both images side by side under colored label bands, with
// every diff area outlined in red.
//
// Render is a pure function of its inputs and performs no I/O.
package diffimage

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/hazyhaar/shotdiff/imgdiff"
)

const (
	bandHeight   = 50
	border       = 1
	markerStroke = 4
	markerPad    = 2
)

// Default labels for the left and right image.
const (
	LabelLeft  = "expected"
	LabelRight = "actual"
)

type rgb struct{ r, g, b float64 }

var (
	leftBand  = rgb{0.2, 0.5, 1.0}
	rightBand = rgb{0.8, 0.2, 0.2}
	frame     = rgb{0.6, 0.6, 0.6}
)

// Render composes a and b side by side with d's areas marked on both.
// labels optionally override LabelLeft and LabelRight.
func Render(a, b image.Image, d *imgdiff.DiffPoints, labels ...string) image.Image {
	left, right := LabelLeft, LabelRight
	if len(labels) > 0 {
		left = labels[0]
	}
	if len(labels) > 1 {
		right = labels[1]
	}

	// Points are in a's frame; both sides are marked relative to it.
	areas := shift(Areas(d), a.Bounds().Min.Mul(-1))
	ma := Mark(a, areas)
	mb := Mark(b, areas)

	wa, ha := ma.Bounds().Dx(), ma.Bounds().Dy()
	wb, hb := mb.Bounds().Dx(), mb.Bounds().Dy()
	colA := wa + 2*border
	colB := wb + 2*border
	h := bandHeight + max(ha, hb) + 2*border

	dc := gg.NewContext(colA+colB, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	drawColumn(dc, 0, colA, ha, ma, leftBand, left)
	drawColumn(dc, colA, colB, hb, mb, rightBand, right)

	return dc.Image()
}

func drawColumn(dc *gg.Context, x, w, imgH int, img image.Image, band rgb, label string) {
	dc.SetRGB(band.r, band.g, band.b)
	dc.DrawRectangle(float64(x), 0, float64(w), bandHeight)
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(label, float64(x)+float64(w)/2, bandHeight/2, 0.5, 0.5)

	dc.SetRGB(frame.r, frame.g, frame.b)
	dc.DrawRectangle(float64(x), bandHeight, float64(w), float64(imgH+2*border))
	dc.Fill()

	dc.DrawImage(img, x+border, bandHeight+border)
}

// Mark returns a copy of img with each rectangle outlined in translucent red.
// Rectangles are relative to img's top-left corner.
func Mark(img image.Image, areas []image.Rectangle) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	if len(areas) == 0 {
		return dc.Image()
	}
	dc.SetRGBA(1, 0, 0, 0.5)
	dc.SetLineWidth(markerStroke)
	for _, r := range areas {
		r = r.Inset(-(markerPad + markerStroke/2))
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()
	}
	return dc.Image()
}

func shift(rs []image.Rectangle, by image.Point) []image.Rectangle {
	out := make([]image.Rectangle, len(rs))
	for i, r := range rs {
		out[i] = r.Add(by)
	}
	return out
}
