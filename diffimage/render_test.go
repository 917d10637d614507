package diffimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/hazyhaar/shotdiff/imgdiff"
)

func TestAreas_Grouping(t *testing.T) {
	d := imgdiff.NewDiffPoints([]image.Point{
		{0, 0}, {5, 5}, {10, 10}, // one cluster
		{100, 100},               // isolated
	}, nil)
	areas := Areas(d)
	if len(areas) != 2 {
		t.Fatalf("got %d areas: %v", len(areas), areas)
	}
	if areas[0] != image.Rect(0, 0, 11, 11) {
		t.Fatalf("cluster: %v", areas[0])
	}
	if areas[1] != image.Rect(100, 100, 101, 101) {
		t.Fatalf("isolated: %v", areas[1])
	}
}

func TestAreas_ChainMerge(t *testing.T) {
	// Sorted row-major, (30,0) arrives before (20,8) which bridges both groups.
	d := imgdiff.NewDiffPoints([]image.Point{{0, 0}, {30, 0}, {10, 5}, {20, 8}}, nil)
	areas := Areas(d)
	if len(areas) != 1 {
		t.Fatalf("got %d areas: %v", len(areas), areas)
	}
	if areas[0] != image.Rect(0, 0, 31, 9) {
		t.Fatalf("merged: %v", areas[0])
	}
}

func TestAreas_SizeBand(t *testing.T) {
	var size []image.Point
	for y := 10; y < 12; y++ {
		for x := range 10 {
			size = append(size, image.Pt(x, y))
		}
	}
	areas := Areas(imgdiff.NewDiffPoints(nil, size))
	if len(areas) != 1 || areas[0] != image.Rect(0, 10, 10, 12) {
		t.Fatalf("areas: %v", areas)
	}
}

func TestRender_Layout(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 40, 30))
	b := image.NewRGBA(image.Rect(0, 0, 60, 20))
	d := imgdiff.NewDiffPoints([]image.Point{{5, 5}}, nil)

	out := Render(a, b, d)
	want := image.Rect(0, 0, 40+2+60+2, bandHeight+30+2)
	if out.Bounds() != want {
		t.Fatalf("bounds: got %v, want %v", out.Bounds(), want)
	}

	// Label bands carry the side colors.
	r, g, bl, _ := out.At(1, 1).RGBA()
	if !(bl > r && bl > g) {
		t.Fatalf("left band not blue: %v", out.At(1, 1))
	}
	r, g, bl, _ = out.At(42+2, 1).RGBA()
	if !(r > g && r > bl) {
		t.Fatalf("right band not red: %v", out.At(44, 1))
	}
}

func TestMark_DoesNotModifyInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	out := Mark(img, []image.Rectangle{image.Rect(10, 10, 12, 12)})
	if img.RGBAAt(7, 7) != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Fatal("input modified")
	}
	// The outline passes 4px outside the area: row 10, column 6.
	r, g, _, _ := out.At(6, 10).RGBA()
	if r <= g {
		t.Fatalf("expected red outline at (6,10), got %v", out.At(6, 10))
	}
}
