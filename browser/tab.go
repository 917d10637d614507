package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/shotdiff/capture"
)

// freezeCSS stops animations, transitions and the text caret so two
// captures of the same page render identically.
const freezeCSS = `*, *::before, *::after {
	animation-duration: 0s !important;
	animation-delay: 0s !important;
	transition-duration: 0s !important;
	transition-delay: 0s !important;
	caret-color: transparent !important;
}`

// Viewport is the emulated window of a tab.
type Viewport struct {
	Width  int
	Height int
	Scale  float64
	Mobile bool
}

// TabOptions configures OpenTab.
type TabOptions struct {
	Viewport Viewport
	// Block lists resource kinds to fail: images, fonts, media, stylesheets.
	Block []string
	// Stealth applies go-rod/stealth evasions.
	Stealth bool
	// Freeze disables CSS animations and transitions on every document.
	Freeze bool
	// NavTimeout bounds navigation. Default: 30s.
	NavTimeout time.Duration
}

// Tab is one page owned by one worker. It implements capture.Handle.
type Tab struct {
	Page *rod.Page
	URL  string

	mgr        *Manager
	navTimeout time.Duration
	router     stopper
	closed     bool
}

// stopper is the part of *rod.HijackRouter a Tab needs on Close.
type stopper interface {
	Stop() error
}

var _ capture.Handle = (*Tab)(nil)

// OpenTab creates a page with opts applied. Navigate separately.
func OpenTab(ctx context.Context, mgr *Manager, opts TabOptions) (*Tab, error) {
	b, err := mgr.acquire(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		mgr.release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &Tab{Page: page, mgr: mgr, navTimeout: opts.NavTimeout}
	if t.navTimeout <= 0 {
		t.navTimeout = 30 * time.Second
	}

	if vp := opts.Viewport; vp.Width > 0 && vp.Height > 0 {
		scale := vp.Scale
		if scale <= 0 {
			scale = 1
		}
		err := page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: scale,
			Mobile:            vp.Mobile,
		})
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("browser: set viewport: %w", err)
		}
	}

	if len(opts.Block) > 0 {
		t.router = blockResources(page, opts.Block)
	}

	if opts.Freeze {
		if _, err := page.EvalOnNewDocument(freezeScript()); err != nil {
			mgr.cfg.Logger.Warn("browser: freeze animations failed", "error", err)
		}
	}
	return t, nil
}

func freezeScript() string {
	css, _ := json.Marshal(freezeCSS)
	return `document.addEventListener('DOMContentLoaded', () => {
	const s = document.createElement('style');
	s.textContent = ` + string(css) + `;
	document.head.appendChild(s);
});`
}

// Navigate loads pageURL and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.navTimeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	t.URL = pageURL
	return nil
}

// TakeScreenshot captures the visible viewport as PNG.
func (t *Tab) TakeScreenshot(ctx context.Context) ([]byte, error) {
	return t.Page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// ExecuteScript evaluates a function expression with args.
func (t *Tab) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	res, err := t.Page.Context(ctx).Eval(script, args...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res.Value)
}

func (t *Tab) ScrollTo(ctx context.Context, x, y float64) error {
	_, err := t.Page.Context(ctx).Eval(`(x, y) => window.scrollTo(x, y)`, x, y)
	return err
}

func (t *Tab) ScrollPosition(ctx context.Context) (float64, float64, error) {
	var p struct{ X, Y float64 }
	if err := t.evalInto(ctx, `() => ({X: window.pageXOffset, Y: window.pageYOffset})`, &p); err != nil {
		return 0, 0, err
	}
	return p.X, p.Y, nil
}

func (t *Tab) WindowSize(ctx context.Context) (float64, float64, error) {
	var s struct{ W, H float64 }
	if err := t.evalInto(ctx, `() => ({W: window.innerWidth, H: window.innerHeight})`, &s); err != nil {
		return 0, 0, err
	}
	return s.W, s.H, nil
}

func (t *Tab) PixelRatio(ctx context.Context) (float64, error) {
	res, err := t.Page.Context(ctx).Eval(`() => window.devicePixelRatio || 1`)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

func (t *Tab) evalInto(ctx context.Context, js string, out any) error {
	raw, err := t.ExecuteScript(ctx, js)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// RecycleDue reports whether the Manager wants this tab closed so Chrome
// can be restarted.
func (t *Tab) RecycleDue() bool { return t.mgr.RecycleDue() }

// Close stops request interception, closes the page and returns its slot
// to the Manager. Closing twice is a no-op.
func (t *Tab) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	defer t.mgr.release()
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			t.mgr.cfg.Logger.Warn("browser: stop request interception", "url", t.URL, "error", err)
		}
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// resourceKinds maps config names to CDP resource types.
var resourceKinds = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

func blockedTypes(kinds []string) map[proto.NetworkResourceType]bool {
	out := make(map[proto.NetworkResourceType]bool, len(kinds))
	for _, k := range kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if rt, ok := resourceKinds[k]; ok {
			out[rt] = true
		}
	}
	return out
}

// blockResources fails requests for the given resource kinds. The returned
// router runs until stopped.
func blockResources(page *rod.Page, kinds []string) *rod.HijackRouter {
	blocked := blockedTypes(kinds)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
