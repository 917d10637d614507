package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"time"

	"github.com/hazyhaar/shotdiff/geom"
)

// pageColor is the color of device pixel (x, y) of the fake page.
func pageColor(x, y int) color.RGBA {
	return color.RGBA{uint8(x % 251), uint8(y % 251), uint8(y / 251), 0xff}
}

// contentColor is the color of device pixel (x, y) inside a scrolling element.
func contentColor(x, y int) color.RGBA {
	return color.RGBA{uint8(x % 241), uint8(y % 241), uint8(100 + y/241), 0xff}
}

var chromeColor = color.RGBA{0x80, 0x80, 0x80, 0xff}

type fakeElement struct {
	rect        geom.Rectangle
	tag         string
	scrollWidth float64
	border      map[string]any
	visibility  string

	// Self-scrolling content, all zero for plain elements.
	scrollW, scrollH float64
	sx, sy           float64
	overflow         string
}

// fakePage simulates a browser tab: a page of pageW x pageH CSS pixels seen
// through a viewW x viewH viewport at the given device pixel ratio.
type fakePage struct {
	pageW, pageH float64
	viewW, viewH float64
	scale        float64

	// header rows are painted above the viewport in every screenshot;
	// footer rows below it unless scrolled to the bottom.
	header, footer int

	scrollX, scrollY float64
	offX, offY       float64
	moved            bool
	overflow         string
	elements         map[string][]*fakeElement

	hidePolls   int // visibility polls answered false before the change applies
	failShotAt  int // 1-based screenshot index that fails, 0 never
	shots       int
	scrolls     int
	overflowLog []string
}

func newFakePage(pageW, pageH, viewW, viewH, scale float64) *fakePage {
	return &fakePage{
		pageW: pageW, pageH: pageH,
		viewW: viewW, viewH: viewH,
		scale:    scale,
		elements: map[string][]*fakeElement{},
	}
}

func (f *fakePage) dev(v float64) int { return geom.RoundInt(v * f.scale) }

func (f *fakePage) TakeScreenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.shots++
	if f.failShotAt > 0 && f.shots == f.failShotAt {
		return nil, errors.New("session terminated")
	}
	footer := f.footer
	if f.scrollY+f.viewH >= f.pageH {
		footer = 0
	}
	w, vh := f.dev(f.viewW), f.dev(f.viewH)
	img := image.NewRGBA(image.Rect(0, 0, w, f.header+vh+footer))
	ox, oy := f.dev(f.scrollX+f.offX), f.dev(f.scrollY+f.offY)
	for y := range img.Bounds().Dy() {
		for x := range w {
			c := chromeColor
			if y >= f.header && y < f.header+vh {
				c = pageColor(ox+x, oy+y-f.header)
			}
			img.SetRGBA(x, y, c)
		}
	}
	// Scrolling elements paint their visible content over the page.
	for _, els := range f.elements {
		for _, el := range els {
			if el.scrollH == 0 {
				continue
			}
			left, top := f.clientOrigin(el)
			x0, y0 := f.dev(left), f.dev(top)+f.header
			cw, ch := f.dev(el.rect.W), f.dev(el.rect.H)
			ex, ey := f.dev(el.sx), f.dev(el.sy)
			for y := range ch {
				for x := range cw {
					if image.Pt(x0+x, y0+y).In(img.Bounds()) {
						img.SetRGBA(x0+x, y0+y, contentColor(ex+x, ey+y))
					}
				}
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakePage) clientOrigin(el *fakeElement) (float64, float64) {
	return el.rect.X - f.scrollX - f.offX, el.rect.Y - f.scrollY - f.offY
}

func (f *fakePage) ScrollTo(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.scrolls++
	f.scrollX = clamp(x, 0, f.pageW-f.viewW)
	f.scrollY = clamp(y, 0, f.pageH-f.viewH)
	return nil
}

func (f *fakePage) ScrollPosition(context.Context) (float64, float64, error) {
	return f.scrollX, f.scrollY, nil
}

func (f *fakePage) WindowSize(context.Context) (float64, float64, error) {
	return f.viewW, f.viewH, nil
}

func (f *fakePage) PixelRatio(context.Context) (float64, error) { return f.scale, nil }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, math.Max(hi, lo)))
}

func (f *fakePage) find(sel string, idx int) *fakeElement {
	els := f.elements[sel]
	if idx < 0 || idx >= len(els) {
		return nil
	}
	return els[idx]
}

func (f *fakePage) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := f.run(script, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (f *fakePage) run(script string, args []any) (any, error) {
	str := func(i int) string { return args[i].(string) }
	num := func(i int) float64 {
		switch x := args[i].(type) {
		case int:
			return float64(x)
		case float64:
			return x
		}
		panic(fmt.Sprintf("arg %d: %T", i, args[i]))
	}

	switch script {
	case scriptPageExtent:
		return map[string]float64{"width": f.pageW, "height": f.pageH}, nil

	case scriptElementRect:
		el := f.find(str(0), int(num(1)))
		if el == nil {
			return map[string]any{"found": false}, nil
		}
		left, top := f.clientOrigin(el)
		return map[string]any{
			"found": true, "tag": el.tag,
			"left": left, "top": top, "width": el.rect.W, "height": el.rect.H,
			"scrollWidth": el.scrollWidth, "border": el.border,
		}, nil

	case scriptElementRects:
		out := []map[string]float64{}
		for _, el := range f.elements[str(0)] {
			left, top := f.clientOrigin(el)
			out = append(out, map[string]float64{"left": left, "top": top, "width": el.rect.W, "height": el.rect.H})
		}
		return out, nil

	case scriptSetVisibility:
		prev := []string{}
		for _, el := range f.elements[str(0)] {
			prev = append(prev, el.visibility)
			el.visibility = str(1)
		}
		return prev, nil

	case scriptRestoreVisibility:
		prev := args[1].([]string)
		for i, el := range f.elements[str(0)] {
			el.visibility = prev[i]
		}
		return true, nil

	case scriptIsVisibility:
		if f.hidePolls > 0 {
			f.hidePolls--
			return false, nil
		}
		for _, el := range f.elements[str(0)] {
			if el.visibility != str(1) {
				return false, nil
			}
		}
		return true, nil

	case scriptSetOverflow:
		prev := f.overflow
		f.overflow = str(0)
		f.overflowLog = append(f.overflowLog, f.overflow)
		return prev, nil

	case scriptElementScrollInfo:
		el := f.find(str(0), int(num(1)))
		if el == nil {
			return map[string]any{"found": false}, nil
		}
		left, top := f.clientOrigin(el)
		return map[string]any{
			"found": true, "clientLeft": left, "clientTop": top,
			"clientWidth": el.rect.W, "clientHeight": el.rect.H,
			"scrollWidth": el.scrollW, "scrollHeight": el.scrollH,
			"scrollLeft": el.sx, "scrollTop": el.sy,
		}, nil

	case scriptElementScrollTo:
		el := f.find(str(0), int(num(1)))
		if el == nil {
			return false, nil
		}
		el.sx = clamp(num(2), 0, el.scrollW-el.rect.W)
		el.sy = clamp(num(3), 0, el.scrollH-el.rect.H)
		return true, nil

	case scriptElementOverflow:
		el := f.find(str(0), int(num(1)))
		if el == nil {
			return "", nil
		}
		prev := el.overflow
		el.overflow = str(2)
		return prev, nil

	case scriptMoveBody:
		f.offX, f.offY, f.moved = num(0), num(1), true
		return map[string]string{"position": "", "left": "", "top": ""}, nil

	case scriptRestoreBody:
		f.offX, f.offY, f.moved = 0, 0, false
		return true, nil
	}
	return nil, fmt.Errorf("unexpected script %q", strings.SplitN(script, "\n", 2)[0])
}

type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.slept += d
	return nil
}
