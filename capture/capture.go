package capture

import (
	"context"
	"errors"
	"image"

	"github.com/hazyhaar/shotdiff/geom"
)

// Capture acquires t: hides t.Hidden, resolves the target rectangle, runs the
// scroll loop, and crops the composite to the target. The page is left as it
// was found, including on failure. A failed capture never returns a partial
// image.
func (s *Session) Capture(ctx context.Context, t Target) (*Shot, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	res := s.Resolver()

	restore, err := s.hide(ctx, t.Hidden)
	if err != nil {
		return nil, err
	}
	defer restore()

	var rect geom.Rectangle
	whole := false
	switch {
	case t.Selector != nil:
		rect, _, err = res.Resolve(ctx, *t.Selector)
	case t.Rect != nil:
		rect = *t.Rect
	default:
		whole = true
		var w, h float64
		w, h, err = res.PageSize(ctx)
		rect = geom.Rect(0, 0, w, h)
	}
	if err != nil {
		return nil, err
	}

	var img *image.RGBA
	var scale float64
	if t.OwnsScroll {
		img, scale, err = s.captureScrolling(ctx, *t.Selector, rect)
	} else {
		img, scale, err = s.capturePage(ctx, t, rect, whole)
	}
	if err != nil {
		return nil, err
	}

	excludes, err := s.excludes(ctx, res, t.Excludes, rect, scale, img.Bounds())
	if err != nil {
		return nil, err
	}

	s.log.Debug("capture: done", "target", t.Label(), "rect", rect.String(),
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "excludes", len(excludes))
	return &Shot{Image: img, Rect: rect, Excludes: excludes, Scale: scale}, nil
}

func (s *Session) capturePage(ctx context.Context, t Target, rect geom.Rectangle, whole bool) (*image.RGBA, float64, error) {
	at := rect
	if t.MoveToOrigin && t.Selector != nil && s.q.CanMoveTarget() && (rect.X != 0 || rect.Y != 0) {
		undo, err := s.moveBody(ctx, rect.X, rect.Y)
		if err != nil {
			return nil, 0, err
		}
		defer undo()
		// Layout may shift by a fraction of a pixel once moved.
		if at, _, err = s.Resolver().Resolve(ctx, *t.Selector); err != nil {
			return nil, 0, err
		}
	}

	until := at.Bottom()
	if whole {
		until = 0
	}
	st, err := s.stitch(ctx, &pageArea{h: s.h}, until)
	if err != nil {
		return nil, 0, err
	}
	if whole {
		return st.Image, st.Scale, nil
	}
	return crop(st.Image, at.Scale(st.Scale).Pixels()), st.Scale, nil
}

func (s *Session) captureScrolling(ctx context.Context, sel Selector, rect geom.Rectangle) (img *image.RGBA, scale float64, err error) {
	x, y, err := s.h.ScrollPosition(ctx)
	if err != nil {
		return nil, 0, automation("scroll position", err)
	}
	defer func() {
		if rerr := s.h.ScrollTo(context.WithoutCancel(ctx), x, y); rerr != nil && err == nil {
			img, err = nil, automation("restore scroll", rerr)
		}
	}()
	// Bring the element's top edge into the viewport.
	if err := s.h.ScrollTo(ctx, 0, rect.Y); err != nil {
		return nil, 0, automation("scroll", err)
	}
	st, err := s.stitch(ctx, &elementArea{h: s.h, sel: sel}, 0)
	if err != nil {
		return nil, 0, err
	}
	return st.Image, st.Scale, nil
}

// excludes converts exclude areas to pixel rectangles local to the shot.
func (s *Session) excludes(ctx context.Context, res *Resolver, areas []Area, rect geom.Rectangle, scale float64, bounds image.Rectangle) ([]image.Rectangle, error) {
	var out []image.Rectangle
	add := func(local geom.Rectangle) {
		px := local.Scale(scale).Pixels().Intersect(bounds)
		if !px.Empty() {
			out = append(out, px)
		}
	}
	for _, a := range areas {
		if a.Rect != nil {
			add(*a.Rect)
			continue
		}
		rects, err := res.ResolveAll(ctx, a.Query)
		if err != nil {
			return nil, err
		}
		if len(rects) == 0 {
			s.log.Debug("capture: exclude matched nothing", "query", a.Query)
		}
		for _, r := range rects {
			add(r.Move(-rect.X, -rect.Y))
		}
	}
	return out, nil
}

type hiddenSet struct {
	query string
	prev  []string
}

// hide makes every match of each selector invisible and waits for the
// change to apply. Selectors matching nothing are skipped. The returned
// function restores the original visibility.
func (s *Session) hide(ctx context.Context, selectors []string) (func(), error) {
	var done []hiddenSet
	restore := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(done) - 1; i >= 0; i-- {
			h := done[i]
			if err := eval(rctx, s.h, "show", scriptRestoreVisibility, nil, h.query, h.prev); err != nil {
				s.log.Warn("capture: restore visibility", "selector", h.query, "error", err)
			}
		}
	}

	for _, sel := range selectors {
		var prev []string
		if err := eval(ctx, s.h, "hide", scriptSetVisibility, &prev, sel, "hidden"); err != nil {
			restore()
			return nil, err
		}
		if len(prev) == 0 {
			s.log.Debug("capture: hidden selector matched nothing", "selector", sel)
			continue
		}
		done = append(done, hiddenSet{query: sel, prev: prev})

		err := Poll(ctx, s.clock, s.interval, s.timeout, func(ctx context.Context) (bool, error) {
			var ok bool
			err := eval(ctx, s.h, "visibility", scriptIsVisibility, &ok, sel, "hidden")
			return ok, err
		})
		switch {
		case errors.Is(err, ErrSoftTimeout):
			s.log.Warn("capture: element still visible, continuing", "selector", sel, "error", err)
		case err != nil:
			restore()
			return nil, err
		}
	}
	return restore, nil
}

type bodyStyle struct {
	Position string `json:"position"`
	Left     string `json:"left"`
	Top      string `json:"top"`
}

// moveBody shifts the page so (x, y) lands at the origin.
func (s *Session) moveBody(ctx context.Context, x, y float64) (func(), error) {
	var prev bodyStyle
	if err := eval(ctx, s.h, "move target", scriptMoveBody, &prev, x, y); err != nil {
		return nil, err
	}
	return func() {
		arg := map[string]string{"position": prev.Position, "left": prev.Left, "top": prev.Top}
		if err := eval(context.WithoutCancel(ctx), s.h, "restore target", scriptRestoreBody, nil, arg); err != nil {
			s.log.Warn("capture: restore moved target", "error", err)
		}
	}, nil
}
