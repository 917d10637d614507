// CLAUDE:SUMMARY Capture/Compare/RenderDiff entry points plus the Run result manager and Checker.AssertView for visual assertions.
// Package assertion is the surface test harnesses use: capture a target,
// compare it with its baseline, render a diff image, and record the outcome
// of every screenshot in a Run.
//
// Usage:
//
//	run, err := assertion.NewRun(ctx, persister, assertion.RunTest)
//	run.BeginClass("LoginTest")
//	chk := run.Checker("LoginTest", "testForm", tab, q)
//	err = chk.AssertView(ctx, "top", capture.Element("#form"))
//	run.EndClass(ctx, "LoginTest")
package assertion

import (
	"context"
	"image"
	"image/draw"

	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/diffimage"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/quirks"
)

// Capture acquires t through h with the quirks of the current platform.
func Capture(ctx context.Context, h capture.Handle, q quirks.Quirks, t capture.Target, opts ...capture.Option) (*capture.Shot, error) {
	return capture.NewSession(h, q, opts...).Capture(ctx, t)
}

// Compare masks the excludes of both shots on both images and compares
// current against baseline with cmp (strict when nil). Points are in the
// current image's frame.
func Compare(current, baseline *capture.Shot, cmp imgdiff.Comparator) (*imgdiff.DiffPoints, error) {
	if current == nil || baseline == nil || current.Image == nil || baseline.Image == nil {
		return nil, imgdiff.ErrInvalidArgument
	}
	if cmp == nil {
		cmp = imgdiff.Strict()
	}
	excludes := append(append([]image.Rectangle{}, current.Excludes...), baseline.Excludes...)
	a, b := image.Image(current.Image), image.Image(baseline.Image)
	if len(excludes) > 0 {
		a = imgdiff.Mask(a, excludes)
		b = imgdiff.Mask(b, excludes)
	}
	return cmp.Compare(a, nil, b, nil)
}

// RenderDiff draws baseline (left, "expected") and current (right, "actual")
// side by side with their differences marked. Arguments follow Compare.
func RenderDiff(current, baseline image.Image, d *imgdiff.DiffPoints) image.Image {
	return diffimage.Render(baseline, current, d, diffimage.LabelLeft, diffimage.LabelRight)
}

// ShotOf wraps a stored image as a Shot so it can be compared.
func ShotOf(img image.Image, excludes []image.Rectangle) *capture.Shot {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Bounds().Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	return &capture.Shot{Image: rgba, Excludes: excludes, Scale: 1}
}
