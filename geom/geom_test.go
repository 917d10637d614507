package geom

import (
	"image"
	"math"
	"testing"
)

func TestScale_RoundTrip(t *testing.T) {
	rects := []Rectangle{
		Rect(0, 0, 10, 10),
		Rect(3, 7, 101, 33),
		Rect(17, 250, 1280, 4096),
		Rect(1, 1, 1, 1),
	}
	scales := []float64{1, 1.25, 1.5, 2, 3}
	for _, r := range rects {
		for _, s := range scales {
			back := r.Scale(s).Scale(1 / s)
			if math.Abs(back.X-r.X) > 1 || math.Abs(back.Y-r.Y) > 1 ||
				math.Abs(back.W-r.W) > 1 || math.Abs(back.H-r.H) > 1 {
				t.Errorf("scale %g: %v -> %v", s, r, back)
			}
		}
	}
}

func TestScale_RoundHalfUpPerAxis(t *testing.T) {
	got := Rect(0.25, 0.75, 1.25, 2.5).Scale(2)
	want := Rect(1, 2, 3, 5)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFloorMove(t *testing.T) {
	r := Rect(1.9, 2.1, 3.99, 4.5).Floor().Move(10, -2)
	if r != Rect(11, 0, 3, 4) {
		t.Fatalf("got %v", r)
	}
}

func TestPixels(t *testing.T) {
	got := Rect(10, 20, 100.4, 50.5).Scale(2).Pixels()
	want := image.Rect(20, 40, 221, 141)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGrowShrink(t *testing.T) {
	b := Edges{Top: 1, Right: 2, Bottom: 3, Left: 4}
	r := Rect(10, 10, 20, 20)
	if g := r.Grow(b); g != Rect(6, 9, 26, 24) {
		t.Fatalf("grow: %v", g)
	}
	if s := r.Grow(b).Shrink(b); s != r {
		t.Fatalf("grow/shrink: %v", s)
	}
	if s := Rect(0, 0, 2, 2).Shrink(b); s.W != 0 || s.H != 0 {
		t.Fatalf("shrink below zero: %v", s)
	}
}

func TestIntersect(t *testing.T) {
	got := Rect(0, 0, 10, 10).Intersect(Rect(5, 5, 10, 10))
	if got != Rect(5, 5, 5, 5) {
		t.Fatalf("got %v", got)
	}
	if !Rect(0, 0, 1, 1).Intersect(Rect(5, 5, 1, 1)).Empty() {
		t.Fatal("disjoint rectangles should not intersect")
	}
}

func TestValid(t *testing.T) {
	if !Rect(0, 0, 0, 0).Valid() {
		t.Error("zero rect should be valid")
	}
	if Rect(0, 0, -1, 2).Valid() {
		t.Error("negative width accepted")
	}
	if Rect(math.NaN(), 0, 1, 1).Valid() {
		t.Error("NaN accepted")
	}
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1px", 1},
		{"1.5px", 1.5},
		{"-2px", -2},
		{"0", 0},
		{"medium", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseLength(tt.in); got != tt.want {
			t.Errorf("ParseLength(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestParseEdges(t *testing.T) {
	e := ParseEdges(map[string]any{"top": "1px", "right": 2.0, "bottom": "3.5px"})
	if e != (Edges{Top: 1, Right: 2, Bottom: 3.5}) {
		t.Fatalf("got %+v", e)
	}
	if e.Horizontal() != 2 || e.Vertical() != 4.5 {
		t.Fatalf("sums: %g %g", e.Horizontal(), e.Vertical())
	}
}
