// CLAUDE:SUMMARY Scroll-and-stitch loop: per-slice header/footer/overlap trimming driven by quirks, both-axis composition, scroll restore.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/quirks"
)

// scrollEpsilon absorbs sub-pixel scroll positions reported by browsers.
const scrollEpsilon = 0.5

// Session captures targets through one Handle.
type Session struct {
	h        Handle
	q        quirks.Quirks
	log      *slog.Logger
	clock    Clock
	settle   time.Duration
	interval time.Duration
	timeout  time.Duration
	onSlice  func(Slice)
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option { return func(s *Session) { s.clock = c } }

// WithSettle sets the pause after each scroll before the screenshot. Default: 100ms.
func WithSettle(d time.Duration) Option { return func(s *Session) { s.settle = d } }

// WithPoll sets the visibility polling interval and budget. Default: 100ms, 30s.
func WithPoll(interval, timeout time.Duration) Option {
	return func(s *Session) { s.interval, s.timeout = interval, timeout }
}

// WithSliceHook is called with every raw slice as it is acquired.
func WithSliceHook(fn func(Slice)) Option { return func(s *Session) { s.onSlice = fn } }

// NewSession binds a Handle to the quirks of its browser.
func NewSession(h Handle, q quirks.Quirks, opts ...Option) *Session {
	s := &Session{
		h:        h,
		q:        q,
		log:      slog.Default(),
		clock:    SystemClock,
		settle:   100 * time.Millisecond,
		interval: 100 * time.Millisecond,
		timeout:  30 * time.Second,
	}
	if s.q == nil {
		s.q = quirks.Desktop{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Quirks returns the platform variant in use.
func (s *Session) Quirks() quirks.Quirks { return s.q }

// Resolver returns an ElementRectResolver over the session's handle.
func (s *Session) Resolver() *Resolver { return &Resolver{h: s.h} }

// extent is the scroll geometry of an area, in CSS pixels.
type extent struct {
	viewW, viewH       float64
	contentW, contentH float64
}

// scrollArea is something the loop can scroll and photograph: the page, or
// one element with its own scrollbars.
type scrollArea interface {
	name() string
	extent(ctx context.Context) (extent, error)
	position(ctx context.Context) (x, y float64, err error)
	scrollTo(ctx context.Context, x, y float64) error
	// visible cuts the area's viewport out of a full screenshot.
	visible(ctx context.Context, img *image.RGBA, scale float64) (*image.RGBA, error)
	// hideScrollbar hides the area's scrollbar and returns the undo.
	hideScrollbar(ctx context.Context) (func(context.Context) error, error)
	canHideScrollbar(q quirks.Quirks) bool
	// geometry is the quirks variant governing slice trimming.
	geometry(q quirks.Quirks) quirks.Quirks
}

// StitchPage captures the whole page.
func (s *Session) StitchPage(ctx context.Context) (*Stitched, error) {
	return s.stitch(ctx, &pageArea{h: s.h}, 0)
}

// StitchElement captures the scrollable content of one element.
func (s *Session) StitchElement(ctx context.Context, sel Selector) (*Stitched, error) {
	return s.stitch(ctx, &elementArea{h: s.h, sel: sel}, 0)
}

// stitch runs the scroll loop over area. A positive until stops the loop
// once the next slice would start below that page offset.
func (s *Session) stitch(ctx context.Context, area scrollArea, until float64) (st *Stitched, err error) {
	scale, err := s.h.PixelRatio(ctx)
	if err != nil {
		return nil, automation("pixel ratio", err)
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: pixel ratio %g", ErrInvalidArgument, scale)
	}

	origX, origY, err := area.position(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		rctx := context.WithoutCancel(ctx)
		if rerr := area.scrollTo(rctx, origX, origY); rerr != nil {
			s.log.Warn("capture: restore scroll position", "area", area.name(), "error", rerr)
			if err == nil {
				st, err = nil, rerr
			}
		}
	}()

	if area.canHideScrollbar(s.q) {
		restore, herr := area.hideScrollbar(ctx)
		if herr != nil {
			return nil, herr
		}
		defer func() {
			if rerr := restore(context.WithoutCancel(ctx)); rerr != nil {
				s.log.Warn("capture: restore scrollbar", "area", area.name(), "error", rerr)
				if err == nil {
					st, err = nil, rerr
				}
			}
		}()
	}

	// Read after hiding: a hidden scrollbar widens the client area.
	ext, err := area.extent(ctx)
	if err != nil {
		return nil, err
	}
	if ext.viewW <= 0 || ext.viewH <= 0 {
		return nil, fmt.Errorf("%w: viewport %gx%g", ErrInvalidArgument, ext.viewW, ext.viewH)
	}

	q := area.geometry(s.q)
	s.log.Debug("capture: stitch start", "area", area.name(), "quirks", q.Name(),
		"view_w", ext.viewW, "view_h", ext.viewH, "content_w", ext.contentW, "content_h", ext.contentH, "scale", scale)

	var rows []*image.RGBA
	cols := 0
	firstHeight := -1
	top := 0.0
	for i := 0; ; i++ {
		last := top >= ext.contentH-ext.viewH-scrollEpsilon

		band, n, err := s.band(ctx, area, q, ext, top, scale)
		if err != nil {
			return nil, err
		}
		cols = max(cols, n)

		head := 0
		if i == 0 {
			head = q.HeaderHeight(ext.contentH, top)
		} else {
			head = q.TrimTop(i, last, ext.viewH, ext.contentH, scale)
		}
		foot := 0
		if !last {
			foot = q.FooterHeight(ext.contentH, top, ext.viewH)
		}
		raw := band.Bounds().Dy()
		band = trimRows(band, head, foot)
		band = q.TrimBottomOvercapture(top, ext.viewH, scale, band)
		if band.Bounds().Empty() {
			return nil, fmt.Errorf("%w: slice %d: trimming %d+%d rows leaves nothing of %d",
				ErrInvalidArgument, i, head, foot, raw)
		}
		rows = append(rows, band)

		s.log.Debug("capture: slice", "area", area.name(), "index", i, "scroll_top", top,
			"trim_top", head, "trim_bottom", foot, "height", band.Bounds().Dy(), "last", last)

		if last {
			break
		}
		if firstHeight < 0 {
			firstHeight = band.Bounds().Dy()
		}
		inc := q.ScrollIncrement(firstHeight, scale)
		if inc <= 0 {
			return nil, fmt.Errorf("%w: non-positive scroll increment %g", ErrInvalidArgument, inc)
		}
		top += inc
		if until > 0 && until < top {
			break
		}
	}

	img := concatV(rows)
	s.log.Debug("capture: stitch done", "area", area.name(), "rows", len(rows), "cols", cols,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return &Stitched{Image: img, Scale: scale, Rows: len(rows), Cols: cols}, nil
}

// band captures one horizontal strip at scroll offset top, left to right.
func (s *Session) band(ctx context.Context, area scrollArea, q quirks.Quirks, ext extent, top, scale float64) (*image.RGBA, int, error) {
	var pieces []*image.RGBA
	pieceWidth := -1
	left := 0.0
	for j := 0; ; j++ {
		lastCol := left >= ext.contentW-ext.viewW-scrollEpsilon

		img, err := s.slice(ctx, area, left, top, scale)
		if err != nil {
			return nil, 0, err
		}
		img = q.TrimRightOvercapture(left, ext.viewW, scale, img)
		if j > 0 && lastCol {
			if rem := math.Mod(ext.contentW, ext.viewW); rem != 0 {
				img = trimLeft(img, geom.RoundInt((ext.viewW-rem)*scale))
			}
		}
		pieces = append(pieces, img)
		if lastCol {
			break
		}
		if pieceWidth < 0 {
			pieceWidth = img.Bounds().Dx()
		}
		left += float64(pieceWidth) / scale
	}
	return concatH(pieces), len(pieces), nil
}

// slice scrolls, waits for the page to settle, and takes one screenshot.
func (s *Session) slice(ctx context.Context, area scrollArea, left, top, scale float64) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, automation("capture", err)
	}
	if err := area.scrollTo(ctx, left, top); err != nil {
		return nil, err
	}
	if err := s.clock.Sleep(ctx, s.settle); err != nil {
		return nil, automation("settle", err)
	}
	data, err := s.h.TakeScreenshot(ctx)
	if err != nil {
		return nil, automation("screenshot", err)
	}
	img, err := decodePNG(data)
	if err != nil {
		return nil, automation("screenshot", err)
	}
	img, err = area.visible(ctx, img, scale)
	if err != nil {
		return nil, err
	}
	if s.onSlice != nil {
		s.onSlice(Slice{Image: img, ScrollLeft: left, ScrollTop: top, Scale: scale})
	}
	return img, nil
}
