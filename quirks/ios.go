package quirks

import (
	"image"
	"math"

	"github.com/hazyhaar/shotdiff/geom"
)

// headerShadow is the rendering shadow mobile Safari draws under its
// toolbar once the page is scrolled.
const headerShadow = 2

// tabBarHeight is the iPad tab strip shown when more than one tab is open.
const tabBarHeight = 66

// IPhone models mobile Safari on a phone: fixed toolbars at both ends of
// every bitmap and a shadow that shifts each scroll by a few pixels.
type IPhone struct {
	Desktop
	Header int
	Footer int
}

func (IPhone) Name() string                  { return "iphone" }
func (IPhone) CanHideScrollbar() bool        { return false }
func (IPhone) CanHideElementScrollbar() bool { return false }

func (q IPhone) HeaderHeight(_, scrollTop float64) int {
	if scrollTop > 0 {
		return q.Header + headerShadow
	}
	return q.Header
}

func (q IPhone) FooterHeight(pageHeight, scrollTop, windowHeight float64) int {
	if scrollTop+windowHeight < pageHeight {
		return q.Footer + headerShadow
	}
	return q.Footer
}

func (IPhone) ScrollIncrement(imageHeight int, scale float64) float64 {
	return float64(imageHeight)/scale - 1
}

// TrimTop removes the persistent toolbar from every later slice and, on the
// final one, the overlap corrected for the 2px drift per scroll.
func (q IPhone) TrimTop(sliceIndex int, last bool, windowHeight, pageHeight, scale float64) int {
	return q.Header + headerShadow + driftOverlap(sliceIndex, last, windowHeight, pageHeight, scale, headerShadow)
}

func (IPhone) TrimBottomOvercapture(captureTop, windowHeight, scale float64, img *image.RGBA) *image.RGBA {
	return trimOvercapture(captureTop, windowHeight, scale, img)
}

func (IPhone) TrimRightOvercapture(captureLeft, windowWidth, scale float64, img *image.RGBA) *image.RGBA {
	return trimRightOvercapture(captureLeft, windowWidth, scale, img)
}

// IPad models mobile Safari on a tablet: no footer, and a tab strip that
// replaces the header shadow when Tabs is set.
type IPad struct {
	Desktop
	Header int
	Tabs   bool
}

func (IPad) Name() string                  { return "ipad" }
func (IPad) CanHideScrollbar() bool        { return false }
func (IPad) CanHideElementScrollbar() bool { return false }

func (q IPad) HeaderHeight(_, scrollTop float64) int {
	switch {
	case q.Tabs:
		return q.Header + tabBarHeight
	case scrollTop > 0:
		return q.Header + headerShadow
	}
	return q.Header
}

func (IPad) FooterHeight(_, _, _ float64) int { return 0 }

func (q IPad) ScrollIncrement(imageHeight int, scale float64) float64 {
	inc := float64(imageHeight) / scale
	if !q.Tabs {
		inc--
	}
	return inc
}

// TrimTop drifts 1px per scroll without tabs, matching the shortened
// ScrollIncrement. With tabs the increment is exact and so is the overlap.
func (q IPad) TrimTop(sliceIndex int, last bool, windowHeight, pageHeight, scale float64) int {
	drift := 1
	if q.Tabs {
		drift = 0
	}
	return q.HeaderHeight(pageHeight, 1) + driftOverlap(sliceIndex, last, windowHeight, pageHeight, scale, drift)
}

func (IPad) TrimBottomOvercapture(captureTop, windowHeight, scale float64, img *image.RGBA) *image.RGBA {
	return trimOvercapture(captureTop, windowHeight, scale, img)
}

func (IPad) TrimRightOvercapture(captureLeft, windowWidth, scale float64, img *image.RGBA) *image.RGBA {
	return trimRightOvercapture(captureLeft, windowWidth, scale, img)
}

// driftOverlap is the final-slice overlap, shortened by drift pixels for
// every scroll already taken.
func driftOverlap(sliceIndex int, last bool, windowHeight, pageHeight, scale float64, drift int) int {
	if !last {
		return 0
	}
	rem := math.Mod(pageHeight, windowHeight)
	if rem == 0 {
		return 0
	}
	v := geom.RoundInt((windowHeight - rem - float64((sliceIndex-1)*drift)) * scale)
	return max(v, 0)
}

func trimOvercapture(captureTop, windowHeight, scale float64, img *image.RGBA) *image.RGBA {
	expected := geom.RoundInt((captureTop + windowHeight) * scale)
	actual := geom.RoundInt(captureTop*scale) + img.Bounds().Dy()
	if expected < actual {
		return cropBottom(img, actual-expected)
	}
	return img
}

func trimRightOvercapture(captureLeft, windowWidth, scale float64, img *image.RGBA) *image.RGBA {
	expected := geom.RoundInt((captureLeft + windowWidth) * scale)
	actual := geom.RoundInt(captureLeft*scale) + img.Bounds().Dx()
	if expected < actual {
		return cropRight(img, actual-expected)
	}
	return img
}
