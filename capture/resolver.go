// CLAUDE:SUMMARY Resolves selectors to page-coordinate rectangles and border widths with one batched script, restoring scroll.
package capture

import (
	"context"
	"fmt"

	"github.com/hazyhaar/shotdiff/geom"
)

// Resolver maps DOM targets to page-coordinate rectangles.
type Resolver struct {
	h Handle
}

// NewResolver returns a Resolver over h.
func NewResolver(h Handle) *Resolver { return &Resolver{h: h} }

type elementRect struct {
	Found       bool           `json:"found"`
	Tag         string         `json:"tag"`
	Left        float64        `json:"left"`
	Top         float64        `json:"top"`
	Width       float64        `json:"width"`
	Height      float64        `json:"height"`
	ScrollWidth float64        `json:"scrollWidth"`
	Border      map[string]any `json:"border"`
}

type plainRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Resolve returns the rectangle of the element sel points at, and its border.
// The page is scrolled to its origin for the read and restored afterwards.
// body reports the full page extent.
func (r *Resolver) Resolve(ctx context.Context, sel Selector) (rect geom.Rectangle, border geom.BorderWidth, err error) {
	var el elementRect
	err = r.atOrigin(ctx, func() error {
		if err := eval(ctx, r.h, "element rect", scriptElementRect, &el, sel.Query, sel.Index); err != nil {
			return err
		}
		if !el.Found {
			return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
		}
		return nil
	})
	if err != nil {
		return geom.Rectangle{}, geom.BorderWidth{}, err
	}

	border = geom.ParseEdges(el.Border)
	if el.Tag == "body" {
		w, h, err := r.PageSize(ctx)
		if err != nil {
			return geom.Rectangle{}, geom.BorderWidth{}, err
		}
		return geom.Rect(0, 0, w, h), border, nil
	}

	width := el.Width
	if el.ScrollWidth != 0 {
		width = el.ScrollWidth + border.Horizontal()
	}
	return geom.Rect(el.Left, el.Top, width, el.Height), border, nil
}

// ResolveAll returns the rectangle of every element matching query. No
// match is not an error.
func (r *Resolver) ResolveAll(ctx context.Context, query string) ([]geom.Rectangle, error) {
	var els []plainRect
	err := r.atOrigin(ctx, func() error {
		return eval(ctx, r.h, "element rects", scriptElementRects, &els, query)
	})
	if err != nil {
		return nil, err
	}
	out := make([]geom.Rectangle, len(els))
	for i, e := range els {
		out[i] = geom.Rect(e.Left, e.Top, e.Width, e.Height)
	}
	return out, nil
}

// PageSize returns the full scrollable page size.
func (r *Resolver) PageSize(ctx context.Context) (w, h float64, err error) {
	var page struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := eval(ctx, r.h, "page extent", scriptPageExtent, &page); err != nil {
		return 0, 0, err
	}
	return page.Width, page.Height, nil
}

// atOrigin runs fn with the page scrolled to (0,0), so viewport-relative
// reads equal page coordinates.
func (r *Resolver) atOrigin(ctx context.Context, fn func() error) (err error) {
	x, y, err := r.h.ScrollPosition(ctx)
	if err != nil {
		return automation("scroll position", err)
	}
	if err := r.h.ScrollTo(ctx, 0, 0); err != nil {
		return automation("scroll", err)
	}
	defer func() {
		if rerr := r.h.ScrollTo(context.WithoutCancel(ctx), x, y); rerr != nil && err == nil {
			err = automation("restore scroll", rerr)
		}
	}()
	return fn()
}
