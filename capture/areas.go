package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/quirks"
)

type pageArea struct {
	h Handle
}

func (*pageArea) name() string { return "page" }

func (a *pageArea) extent(ctx context.Context) (extent, error) {
	w, h, err := a.h.WindowSize(ctx)
	if err != nil {
		return extent{}, automation("window size", err)
	}
	var page struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := eval(ctx, a.h, "page extent", scriptPageExtent, &page); err != nil {
		return extent{}, err
	}
	return extent{viewW: w, viewH: h, contentW: max(page.Width, w), contentH: max(page.Height, h)}, nil
}

func (a *pageArea) position(ctx context.Context) (float64, float64, error) {
	x, y, err := a.h.ScrollPosition(ctx)
	if err != nil {
		return 0, 0, automation("scroll position", err)
	}
	return x, y, nil
}

func (a *pageArea) scrollTo(ctx context.Context, x, y float64) error {
	if err := a.h.ScrollTo(ctx, x, y); err != nil {
		return automation("scroll", err)
	}
	return nil
}

func (*pageArea) visible(_ context.Context, img *image.RGBA, _ float64) (*image.RGBA, error) {
	return img, nil
}

func (a *pageArea) hideScrollbar(ctx context.Context) (func(context.Context) error, error) {
	var prev string
	if err := eval(ctx, a.h, "hide scrollbar", scriptSetOverflow, &prev, "hidden"); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return eval(ctx, a.h, "show scrollbar", scriptSetOverflow, nil, prev)
	}, nil
}

func (*pageArea) canHideScrollbar(q quirks.Quirks) bool { return q.CanHideScrollbar() }

func (*pageArea) geometry(q quirks.Quirks) quirks.Quirks { return q }

// elementArea is an element whose content scrolls inside its own box.
type elementArea struct {
	h   Handle
	sel Selector
}

type scrollInfo struct {
	Found        bool    `json:"found"`
	ClientLeft   float64 `json:"clientLeft"`
	ClientTop    float64 `json:"clientTop"`
	ClientWidth  float64 `json:"clientWidth"`
	ClientHeight float64 `json:"clientHeight"`
	ScrollWidth  float64 `json:"scrollWidth"`
	ScrollHeight float64 `json:"scrollHeight"`
	ScrollLeft   float64 `json:"scrollLeft"`
	ScrollTop    float64 `json:"scrollTop"`
}

func (a *elementArea) name() string { return a.sel.String() }

func (a *elementArea) info(ctx context.Context) (scrollInfo, error) {
	var si scrollInfo
	if err := eval(ctx, a.h, "element scroll info", scriptElementScrollInfo, &si, a.sel.Query, a.sel.Index); err != nil {
		return si, err
	}
	if !si.Found {
		return si, fmt.Errorf("%w: %s", ErrElementNotFound, a.sel)
	}
	return si, nil
}

func (a *elementArea) extent(ctx context.Context) (extent, error) {
	si, err := a.info(ctx)
	if err != nil {
		return extent{}, err
	}
	return extent{
		viewW:    si.ClientWidth,
		viewH:    si.ClientHeight,
		contentW: max(si.ScrollWidth, si.ClientWidth),
		contentH: max(si.ScrollHeight, si.ClientHeight),
	}, nil
}

func (a *elementArea) position(ctx context.Context) (float64, float64, error) {
	si, err := a.info(ctx)
	if err != nil {
		return 0, 0, err
	}
	return si.ScrollLeft, si.ScrollTop, nil
}

func (a *elementArea) scrollTo(ctx context.Context, x, y float64) error {
	var ok bool
	if err := eval(ctx, a.h, "element scroll", scriptElementScrollTo, &ok, a.sel.Query, a.sel.Index, x, y); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, a.sel)
	}
	return nil
}

func (a *elementArea) visible(ctx context.Context, img *image.RGBA, scale float64) (*image.RGBA, error) {
	si, err := a.info(ctx)
	if err != nil {
		return nil, err
	}
	r := geom.Rect(si.ClientLeft, si.ClientTop, si.ClientWidth, si.ClientHeight).Scale(scale).Pixels()
	return crop(img, r), nil
}

func (a *elementArea) hideScrollbar(ctx context.Context) (func(context.Context) error, error) {
	var prev string
	if err := eval(ctx, a.h, "hide element scrollbar", scriptElementOverflow, &prev, a.sel.Query, a.sel.Index, "hidden"); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return eval(ctx, a.h, "show element scrollbar", scriptElementOverflow, nil, a.sel.Query, a.sel.Index, prev)
	}, nil
}

func (*elementArea) canHideScrollbar(q quirks.Quirks) bool { return q.CanHideElementScrollbar() }

// Browser chrome never appears inside an element's box.
func (*elementArea) geometry(quirks.Quirks) quirks.Quirks { return quirks.Desktop{} }
