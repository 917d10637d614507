package main

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/shotdiff/config"
	"github.com/hazyhaar/shotdiff/imgdiff"
)

func writeSolid(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	if err := writePNG(path, img); err != nil {
		t.Fatal(err)
	}
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	out := filepath.Join(dir, "diff.png")
	writeSolid(t, a, 6, 6, color.RGBA{50, 50, 50, 255})
	writeSolid(t, b, 6, 6, color.RGBA{52, 50, 50, 255})

	stdout := os.Stdout
	devnull, _ := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	os.Stdout = devnull
	t.Cleanup(func() { os.Stdout = stdout; devnull.Close() })

	if err := compareFiles(a, a, out, imgdiff.Options{}); err != nil {
		t.Fatalf("identical: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("diff image written for identical inputs")
	}

	if err := compareFiles(a, b, out, imgdiff.Options{}); !errors.Is(err, errFailed) {
		t.Fatalf("strict err = %v, want errFailed", err)
	}
	if _, err := readPNG(out); err != nil {
		t.Errorf("diff image: %v", err)
	}

	if err := compareFiles(a, b, out, imgdiff.Options{Kind: imgdiff.KindTolerance, Tolerance: 2}); err != nil {
		t.Errorf("tolerance: %v", err)
	}
}

func TestCompareFilesMissing(t *testing.T) {
	if err := compareFiles("/nonexistent/a.png", "/nonexistent/b.png", "", imgdiff.Options{}); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestCases(t *testing.T) {
	cfg, err := config.Parse([]byte(`
cases:
  - class: Home
    method: hero
    url: http://localhost/
    screenshots:
      - id: top
        wait_signal: true
`))
	if err != nil {
		t.Fatal(err)
	}
	got := cases(cfg)
	if len(got) != 1 || got[0].Class != "Home" || got[0].URL != "http://localhost/" {
		t.Fatalf("cases = %+v", got)
	}
	s := got[0].Screenshots
	if len(s) != 1 || s[0].ID != "top" || !s[0].WaitSignal || len(s[0].Targets) != 1 {
		t.Errorf("screenshots = %+v", s)
	}

	opts := tabOptions(cfg)
	if opts.Viewport.Width != 1280 || !opts.Freeze {
		t.Errorf("tab options = %+v", opts)
	}
}
