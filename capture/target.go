package capture

import (
	"fmt"
	"image"

	"github.com/hazyhaar/shotdiff/geom"
)

// Selector picks the index-th element matching a CSS query.
type Selector struct {
	Query string `json:"query" yaml:"query"`
	Index int    `json:"index,omitempty" yaml:"index"`
}

func (s Selector) String() string {
	if s.Index == 0 {
		return s.Query
	}
	return fmt.Sprintf("%s[%d]", s.Query, s.Index)
}

// Area is an excluded sub-region: every element matching Query, or a literal
// rectangle in target-local CSS pixels.
type Area struct {
	Query string          `json:"query,omitempty" yaml:"query"`
	Rect  *geom.Rectangle `json:"rect,omitempty" yaml:"rect"`
}

// Target is what one capture acquires. Exactly one of Selector and Rect is
// set; with neither, the whole page is captured.
type Target struct {
	Selector *Selector      `json:"selector,omitempty" yaml:"selector"`
	Rect     *geom.Rectangle `json:"rect,omitempty" yaml:"rect"`

	// Excludes are masked before comparison.
	Excludes []Area `json:"excludes,omitempty" yaml:"excludes"`
	// Hidden lists selectors made invisible for the duration of the capture.
	Hidden []string `json:"hidden,omitempty" yaml:"hidden"`

	// MoveToOrigin shifts the page so the target sits at (0,0) while captured.
	MoveToOrigin bool `json:"moveToOrigin,omitempty" yaml:"move_to_origin"`
	// OwnsScroll captures the element's own scrollable content.
	OwnsScroll bool `json:"ownsScroll,omitempty" yaml:"owns_scroll"`
}

// Page is the whole-page target.
func Page() Target { return Target{} }

// Element targets the first match of query.
func Element(query string) Target { return Target{Selector: &Selector{Query: query}} }

// Validate checks the target before any browser round-trip.
func (t Target) Validate() error {
	if t.Selector != nil && t.Rect != nil {
		return fmt.Errorf("%w: target has both selector and rectangle", ErrInvalidArgument)
	}
	if t.Selector != nil && (t.Selector.Query == "" || t.Selector.Index < 0) {
		return fmt.Errorf("%w: bad selector %q", ErrInvalidArgument, t.Selector.String())
	}
	if t.Rect != nil && !t.Rect.Valid() {
		return fmt.Errorf("%w: bad rectangle %v", ErrInvalidArgument, *t.Rect)
	}
	if t.OwnsScroll && t.Selector == nil {
		return fmt.Errorf("%w: self-scrolling target needs a selector", ErrInvalidArgument)
	}
	for _, a := range t.Excludes {
		if (a.Query == "") == (a.Rect == nil) {
			return fmt.Errorf("%w: exclude needs exactly one of query and rect", ErrInvalidArgument)
		}
	}
	return nil
}

// Label is a stable description used as a persistence key.
func (t Target) Label() string {
	switch {
	case t.Selector != nil:
		return t.Selector.String()
	case t.Rect != nil:
		return "rect" + t.Rect.String()
	}
	return "body"
}

// Shot is the result of Capture.
type Shot struct {
	// Image holds the target's pixels; its origin is (0,0).
	Image *image.RGBA
	// Rect is the target in page coordinates (CSS pixels).
	Rect geom.Rectangle
	// Excludes are the masked areas in Image's pixel coordinates.
	Excludes []image.Rectangle
	// Scale is the device pixel ratio Image was captured at.
	Scale float64
}

// Slice is one raw screenshot and the scroll state it was taken in.
type Slice struct {
	Image      *image.RGBA
	ScrollLeft float64
	ScrollTop  float64
	Scale      float64
}

// Stitched is the composite of every trimmed slice of one scroll loop.
type Stitched struct {
	Image *image.RGBA
	Scale float64
	Rows  int
	Cols  int
}
