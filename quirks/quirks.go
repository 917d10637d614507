// CLAUDE:SUMMARY Per-platform capture geometry: header/footer chrome, scroll increment, slice trimming, selected once from capabilities.
// Package quirks describes how each browser/device combination distorts a
// viewport screenshot, as a set of pure functions the capture loop consults.
//
// A Quirks value is chosen once per browser session by ForCapabilities and
// never mutated. Desktop is the zero-correction default; the mobile variants
// embed it and override only what differs.
//
// Usage:
//
//	q, err := quirks.ForCapabilities(quirks.Capabilities{Browser: "chrome"})
//	rows := q.HeaderHeight(pageHeight, scrollTop)
package quirks

import (
	"image"
	"math"

	"github.com/hazyhaar/shotdiff/geom"
)

// Quirks is the capture-geometry contract for one platform.
// Heights returned are in bitmap pixels; page quantities are CSS pixels.
type Quirks interface {
	// Name identifies the variant in logs and persisted metadata.
	Name() string

	// CanHideScrollbar reports whether the page scrollbar may be hidden
	// for the duration of a capture.
	CanHideScrollbar() bool

	// CanHideElementScrollbar is CanHideScrollbar for a self-scrolling element.
	CanHideElementScrollbar() bool

	// CanMoveTarget reports whether a target may be shifted to the page
	// origin before capture.
	CanMoveTarget() bool

	// HeaderHeight is the number of chrome rows at the top of a slice
	// taken at scrollTop.
	HeaderHeight(pageHeight, scrollTop float64) int

	// FooterHeight is the number of chrome rows at the bottom of a slice.
	FooterHeight(pageHeight, scrollTop, windowHeight float64) int

	// ScrollIncrement is the scroll step, in CSS pixels, after a slice of
	// imageHeight bitmap rows.
	ScrollIncrement(imageHeight int, scale float64) float64

	// TrimTop is the number of rows discarded from the top of slice
	// sliceIndex (> 0). last is true for the final slice of the loop.
	TrimTop(sliceIndex int, last bool, windowHeight, pageHeight, scale float64) int

	// TrimBottomOvercapture crops rows the browser rendered beyond the
	// expected bottom edge of a slice taken at captureTop.
	TrimBottomOvercapture(captureTop, windowHeight, scale float64, img *image.RGBA) *image.RGBA

	// TrimRightOvercapture is TrimBottomOvercapture for the columns past
	// the expected right edge of a slice taken at captureLeft.
	TrimRightOvercapture(captureLeft, windowWidth, scale float64, img *image.RGBA) *image.RGBA
}

// Desktop is the default variant: no chrome in the bitmap and exact scrolling.
type Desktop struct{}

func (Desktop) Name() string                  { return "desktop" }
func (Desktop) CanHideScrollbar() bool        { return true }
func (Desktop) CanHideElementScrollbar() bool { return true }
func (Desktop) CanMoveTarget() bool           { return true }

func (Desktop) HeaderHeight(_, _ float64) int    { return 0 }
func (Desktop) FooterHeight(_, _, _ float64) int { return 0 }

func (Desktop) ScrollIncrement(imageHeight int, scale float64) float64 {
	return float64(imageHeight) / scale
}

// TrimTop drops, from the final slice only, the overlap left when the
// browser clamps the last scroll to the page bottom.
func (Desktop) TrimTop(_ int, last bool, windowHeight, pageHeight, scale float64) int {
	if !last {
		return 0
	}
	rem := math.Mod(pageHeight, windowHeight)
	if rem == 0 {
		return 0
	}
	return geom.RoundInt((windowHeight - rem) * scale)
}

func (Desktop) TrimBottomOvercapture(_, _, _ float64, img *image.RGBA) *image.RGBA {
	return img
}

func (Desktop) TrimRightOvercapture(_, _, _ float64, img *image.RGBA) *image.RGBA {
	return img
}

// IE7 cannot hide scrollbars and cannot reposition the target.
type IE7 struct{ Desktop }

func (IE7) Name() string                  { return "ie7" }
func (IE7) CanHideScrollbar() bool        { return false }
func (IE7) CanHideElementScrollbar() bool { return false }
func (IE7) CanMoveTarget() bool           { return false }

// Android hides the body scrollbar but not the scrollbar of an element.
type Android struct{ Desktop }

func (Android) Name() string                  { return "android" }
func (Android) CanHideElementScrollbar() bool { return false }

// cropBottom returns img without its last n rows. Cropping every row
// leaves an empty image, which the capture loop rejects.
func cropBottom(img *image.RGBA, n int) *image.RGBA {
	b := img.Bounds()
	if n <= 0 {
		return img
	}
	n = min(n, b.Dy())
	return img.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Max.Y-n)).(*image.RGBA)
}

// cropRight returns img without its last n columns, under the same rule.
func cropRight(img *image.RGBA, n int) *image.RGBA {
	b := img.Bounds()
	if n <= 0 {
		return img
	}
	n = min(n, b.Dx())
	return img.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Max.X-n, b.Max.Y)).(*image.RGBA)
}
