package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/quirks"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSession(f *fakePage, q quirks.Quirks, slices *int) *Session {
	return NewSession(f, q,
		WithLogger(quiet),
		WithClock(&fakeClock{}),
		WithSliceHook(func(Slice) { *slices++ }),
	)
}

// assertPage checks that img shows the fake page from device pixel (ox, oy).
func assertPage(t *testing.T, img *image.RGBA, ox, oy int, colorAt func(x, y int) (c [4]uint8)) {
	t.Helper()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			got := img.RGBAAt(x, y)
			want := colorAt(ox+x-b.Min.X, oy+y-b.Min.Y)
			if [4]uint8{got.R, got.G, got.B, got.A} != want {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func pageAt(x, y int) [4]uint8 {
	c := pageColor(x, y)
	return [4]uint8{c.R, c.G, c.B, c.A}
}

func contentAt(x, y int) [4]uint8 {
	c := contentColor(x, y)
	return [4]uint8{c.R, c.G, c.B, c.A}
}

func TestStitch_SingleViewport(t *testing.T) {
	f := newFakePage(50, 100, 50, 100, 1)
	var n int
	st, err := newTestSession(f, nil, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || st.Rows != 1 {
		t.Fatalf("slices: got %d (rows %d), want 1", n, st.Rows)
	}
	if st.Image.Bounds() != image.Rect(0, 0, 50, 100) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, st.Image, 0, 0, pageAt)
}

func TestStitch_TwoAndAHalfViewports(t *testing.T) {
	f := newFakePage(50, 250, 50, 100, 1)
	f.scrollY = 40
	var n int
	st, err := newTestSession(f, nil, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("slices: got %d, want 3", n)
	}
	if st.Image.Bounds() != image.Rect(0, 0, 50, 250) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, st.Image, 0, 0, pageAt)

	if f.scrollY != 40 {
		t.Fatalf("scroll not restored: %g", f.scrollY)
	}
	if len(f.overflowLog) != 2 || f.overflowLog[0] != "hidden" || f.overflow != "" {
		t.Fatalf("scrollbar not hidden then restored: %v", f.overflowLog)
	}
}

func TestStitch_DevicePixelRatio(t *testing.T) {
	f := newFakePage(40, 250, 40, 100, 2)
	var n int
	st, err := newTestSession(f, nil, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || st.Scale != 2 {
		t.Fatalf("slices %d scale %g", n, st.Scale)
	}
	if st.Image.Bounds() != image.Rect(0, 0, 80, 500) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, st.Image, 0, 0, pageAt)
}

func TestStitch_BothAxes(t *testing.T) {
	f := newFakePage(130, 250, 50, 100, 1)
	var n int
	st, err := newTestSession(f, nil, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Rows != 3 || st.Cols != 3 || n != 9 {
		t.Fatalf("rows %d cols %d slices %d", st.Rows, st.Cols, n)
	}
	if st.Image.Bounds() != image.Rect(0, 0, 130, 250) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, st.Image, 0, 0, pageAt)
}

// chrome is a test variant whose bitmaps carry fixed toolbars.
type chrome struct {
	quirks.Desktop
	header, footer int
}

func (c chrome) CanHideScrollbar() bool          { return false }
func (c chrome) HeaderHeight(_, _ float64) int    { return c.header }
func (c chrome) FooterHeight(_, _, _ float64) int { return c.footer }

func (c chrome) TrimTop(i int, last bool, wh, ph, scale float64) int {
	return c.header + c.Desktop.TrimTop(i, last, wh, ph, scale)
}

func TestStitch_HeaderAndFooterChrome(t *testing.T) {
	f := newFakePage(30, 250, 30, 100, 1)
	f.header, f.footer = 12, 7
	var n int
	st, err := newTestSession(f, chrome{header: 12, footer: 7}, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("slices: got %d", n)
	}
	if st.Image.Bounds().Dy() != 250 {
		t.Fatalf("height: %d", st.Image.Bounds().Dy())
	}
	assertPage(t, st.Image, 0, 0, pageAt)
	if len(f.overflowLog) != 0 {
		t.Fatal("scrollbar touched on a platform that cannot hide it")
	}
}

func TestStitch_AbortsOnAutomationFailure(t *testing.T) {
	f := newFakePage(50, 250, 50, 100, 1)
	f.scrollY = 25
	f.failShotAt = 2
	var n int
	st, err := newTestSession(f, nil, &n).StitchPage(context.Background())
	if !errors.Is(err, ErrAutomation) {
		t.Fatalf("error: %v", err)
	}
	if st != nil {
		t.Fatal("partial composite returned")
	}
	if f.scrollY != 25 || f.overflow != "" {
		t.Fatalf("state not restored: scroll %g overflow %q", f.scrollY, f.overflow)
	}
}

func TestStitch_Cancelled(t *testing.T) {
	f := newFakePage(50, 250, 50, 100, 1)
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	s := NewSession(f, nil, WithLogger(quiet), WithClock(&fakeClock{}), WithSliceHook(func(Slice) {
		n++
		cancel()
	}))
	st, err := s.StitchPage(ctx)
	if err == nil || st != nil {
		t.Fatalf("expected abort, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error should carry cancellation: %v", err)
	}
	if n != 1 {
		t.Fatalf("slices after cancel: %d", n)
	}
}

func TestStitch_Element(t *testing.T) {
	f := newFakePage(100, 300, 100, 150, 1)
	f.elements["#log"] = []*fakeElement{{
		rect: geom.Rect(5, 20, 40, 30), tag: "div",
		scrollW: 40, scrollH: 100,
	}}
	var n int
	st, err := newTestSession(f, nil, &n).StitchElement(context.Background(), Selector{Query: "#log"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("slices: got %d, want 4", n)
	}
	if st.Image.Bounds() != image.Rect(0, 0, 40, 100) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, st.Image, 0, 0, contentAt)
	el := f.elements["#log"][0]
	if el.sy != 0 || el.overflow != "" {
		t.Fatalf("element state not restored: sy %g overflow %q", el.sy, el.overflow)
	}
}

func TestStitch_ElementNotFound(t *testing.T) {
	f := newFakePage(100, 300, 100, 150, 1)
	var n int
	_, err := newTestSession(f, nil, &n).StitchElement(context.Background(), Selector{Query: "#missing"})
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("error: %v", err)
	}
}

func rowsOf(img *image.RGBA, y0, y1 int) *image.RGBA {
	return img.SubImage(image.Rect(0, y0, img.Bounds().Dx(), y1)).(*image.RGBA)
}

func TestStitch_IPhone(t *testing.T) {
	f := newFakePage(30, 250, 30, 100, 1)
	f.header, f.footer = 12, 7
	var n int
	st, err := newTestSession(f, quirks.IPhone{Header: 12, Footer: 7}, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("slices: got %d, want 3", n)
	}
	// 98 rows, then 96 below the shadowed header, then the last 50.
	if st.Image.Bounds() != image.Rect(0, 0, 30, 244) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, rowsOf(st.Image, 0, 98), 0, 0, pageAt)
	assertPage(t, rowsOf(st.Image, 98, 194), 0, 99, pageAt)
	assertPage(t, rowsOf(st.Image, 194, 244), 0, 200, pageAt)
}

func TestStitch_IPad(t *testing.T) {
	f := newFakePage(30, 250, 30, 100, 1)
	f.header = 12
	var n int
	st, err := newTestSession(f, quirks.IPad{Header: 12}, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("slices: got %d, want 3", n)
	}
	if st.Image.Bounds() != image.Rect(0, 0, 30, 247) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, rowsOf(st.Image, 0, 100), 0, 0, pageAt)
	assertPage(t, rowsOf(st.Image, 100, 198), 0, 101, pageAt)
	assertPage(t, rowsOf(st.Image, 198, 247), 0, 201, pageAt)
}

func TestStitch_IPadTabs(t *testing.T) {
	f := newFakePage(30, 250, 30, 100, 1)
	f.header = 12 + 66
	var n int
	st, err := newTestSession(f, quirks.IPad{Header: 12, Tabs: true}, &n).StitchPage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("slices: got %d, want 3", n)
	}
	// Exact increments leave no drift: the page comes out whole.
	if st.Image.Bounds() != image.Rect(0, 0, 30, 250) {
		t.Fatalf("bounds: %v", st.Image.Bounds())
	}
	assertPage(t, st.Image, 0, 0, pageAt)
}

func TestStitch_TrimConsumesSlice(t *testing.T) {
	f := newFakePage(30, 250, 30, 100, 1)
	f.header, f.footer = 12, 7
	f.scrollY = 30
	var n int
	st, err := newTestSession(f, chrome{header: 130, footer: 7}, &n).StitchPage(context.Background())
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("error: %v", err)
	}
	if st != nil {
		t.Fatal("composite returned from an emptied slice")
	}
	if f.scrollY != 30 {
		t.Fatalf("scroll not restored: %g", f.scrollY)
	}
}
