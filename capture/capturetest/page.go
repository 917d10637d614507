// Package capturetest provides a scriptable in-memory capture.Handle for
// tests of packages built on capture.
//
// Usage:
//
//	page := capturetest.NewPage(img, 100, 50, 1)
//	page.Elements["#box"] = []geom.Rectangle{geom.Rect(10, 10, 20, 20)}
//	shot, err := capture.NewSession(page, nil, capture.WithSettle(0)).Capture(ctx, capture.Element("#box"))
package capturetest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/geom"
)

// Page renders a fixed full-page image through a viewport. The image is in
// device pixels; the page is Image size / Scale CSS pixels.
type Page struct {
	mu sync.Mutex

	Image        *image.RGBA
	ViewW, ViewH float64
	Scale        float64
	// Elements maps a selector to the page rectangles of its matches.
	Elements map[string][]geom.Rectangle
	// FailScreenshots makes every TakeScreenshot fail.
	FailScreenshots bool

	scrollX, scrollY float64
	shots            int
}

var _ capture.Handle = (*Page)(nil)

// NewPage returns a Page showing img through a viewW x viewH viewport.
func NewPage(img image.Image, viewW, viewH, scale float64) *Page {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return &Page{
		Image:    rgba,
		ViewW:    viewW,
		ViewH:    viewH,
		Scale:    scale,
		Elements: map[string][]geom.Rectangle{},
	}
}

// Shots reports how many screenshots were taken.
func (p *Page) Shots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shots
}

func (p *Page) size() (float64, float64) {
	b := p.Image.Bounds()
	return float64(b.Dx()) / p.Scale, float64(b.Dy()) / p.Scale
}

func (p *Page) TakeScreenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	if p.FailScreenshots {
		return nil, errors.New("capturetest: screenshot failed")
	}
	dev := func(v float64) int { return geom.RoundInt(v * p.Scale) }
	view := image.NewRGBA(image.Rect(0, 0, dev(p.ViewW), dev(p.ViewH)))
	draw.Draw(view, view.Bounds(), p.Image, image.Pt(dev(p.scrollX), dev(p.scrollY)), draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Page) ScrollTo(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	w, h := p.size()
	p.scrollX = clamp(x, w-p.ViewW)
	p.scrollY = clamp(y, h-p.ViewH)
	return nil
}

func clamp(v, hi float64) float64 { return math.Max(0, math.Min(v, math.Max(hi, 0))) }

func (p *Page) ScrollPosition(context.Context) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollX, p.scrollY, nil
}

func (p *Page) WindowSize(context.Context) (float64, float64, error) {
	return p.ViewW, p.ViewH, nil
}

func (p *Page) PixelRatio(context.Context) (float64, error) { return p.Scale, nil }

func (p *Page) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.run(capture.ScriptName(script), args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (p *Page) run(name string, args []any) (any, error) {
	str := func(i int) string { s, _ := args[i].(string); return s }
	idx := func(i int) int {
		switch v := args[i].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
		return 0
	}

	switch name {
	case "pageExtent":
		w, h := p.size()
		return map[string]float64{"width": w, "height": h}, nil
	case "elementRect":
		els := p.Elements[str(0)]
		i := idx(1)
		if i < 0 || i >= len(els) {
			return map[string]any{"found": false}, nil
		}
		r := els[i]
		return map[string]any{
			"found": true, "tag": "div",
			"left": r.X - p.scrollX, "top": r.Y - p.scrollY, "width": r.W, "height": r.H,
			"scrollWidth": r.W, "border": map[string]string{},
		}, nil
	case "elementRects":
		out := []map[string]float64{}
		for _, r := range p.Elements[str(0)] {
			out = append(out, map[string]float64{"left": r.X - p.scrollX, "top": r.Y - p.scrollY, "width": r.W, "height": r.H})
		}
		return out, nil
	case "setVisibility":
		return make([]string, len(p.Elements[str(0)])), nil
	case "restoreVisibility", "isVisibility", "restoreBody":
		return true, nil
	case "setOverflow":
		return "", nil
	case "moveBody":
		return map[string]string{"position": "", "left": "", "top": ""}, nil
	}
	return nil, fmt.Errorf("capturetest: unsupported script %q", name)
}
