package assertion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/persist"
	"github.com/hazyhaar/shotdiff/quirks"
)

// TargetFailure is one target whose pixels differ from the baseline.
type TargetFailure struct {
	Target   string
	Diff     *imgdiff.DiffPoints
	Expected image.Image
	Actual   image.Image
	Excludes []image.Rectangle
}

// AssertionError reports a visual mismatch. It is distinct from automation
// and storage errors, which AssertView returns unwrapped.
type AssertionError struct {
	Class, Method, ScreenshotID string
	Failures                    []TargetFailure
}

func (e *AssertionError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = fmt.Sprintf("%s (%d content, %d size)", f.Target, len(f.Diff.Content()), len(f.Diff.Size()))
	}
	return fmt.Sprintf("assertion: %s#%s %q differs from baseline: %s",
		e.Class, e.Method, e.ScreenshotID, strings.Join(names, ", "))
}

// IsAssertion reports whether err is (or wraps) an AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// Checker binds a Run to one test method and one browser handle.
type Checker struct {
	Run          *Run
	Class        string
	Method       string
	Session      *capture.Session
	Comparator   imgdiff.Comparator
	Capabilities quirks.Capabilities
	Log          *slog.Logger
}

// Checker returns a Checker for class#method capturing through h.
func (r *Run) Checker(class, method string, h capture.Handle, q quirks.Quirks, opts ...capture.Option) *Checker {
	return &Checker{
		Run:     r,
		Class:   class,
		Method:  method,
		Session: capture.NewSession(h, q, append([]capture.Option{capture.WithLogger(r.log)}, opts...)...),
		Log:     r.log,
	}
}

func (c *Checker) meta(screenshotID string, t capture.Target) persist.Metadata {
	m := persist.Metadata{
		RunID:        c.Run.ID,
		Class:        c.Class,
		Method:       c.Method,
		ScreenshotID: screenshotID,
		Capabilities: c.Capabilities.String(),
	}
	switch {
	case t.Selector != nil:
		m.Selector, m.Index = t.Selector.Query, t.Selector.Index
	case t.Rect != nil:
		r := *t.Rect
		m.Rect = &r
	default:
		m.Selector = "body"
	}
	return m
}

// AssertView captures every target and, depending on the run's mode,
// stores it, records it as the baseline, or compares it with the baseline.
// Every target is processed even after a mismatch; mismatches are returned
// together as an *AssertionError.
func (c *Checker) AssertView(ctx context.Context, screenshotID string, targets ...capture.Target) error {
	if len(targets) == 0 {
		targets = []capture.Target{capture.Page()}
	}
	res := ScreenshotResult{
		ScreenshotID: screenshotID,
		Method:       c.Method,
		Capabilities: c.Capabilities.String(),
	}

	var expectedID string
	if c.Run.Mode == RunTest {
		id, err := c.Run.ExpectedID(c.Class, c.Method)
		if err != nil {
			return err
		}
		expectedID, res.ExpectedID = id, id
	}

	var failures []TargetFailure
	for _, t := range targets {
		meta := c.meta(screenshotID, t)
		shot, err := c.Session.Capture(ctx, t)
		if err != nil {
			c.Run.CancelExpectedID(c.Class)
			return fmt.Errorf("assertion: capture %s: %w", t.Label(), err)
		}
		if err := c.Run.Persister.SaveImage(ctx, meta, persist.KindScreenshot, shot.Image); err != nil {
			return fmt.Errorf("assertion: save screenshot: %w", err)
		}
		tr := TargetResult{Target: t.Label(), Rect: shot.Rect, Excludes: shot.Excludes}

		if c.Run.Mode == RunTest {
			fail, err := c.compare(ctx, meta, expectedID, shot, &tr)
			if err != nil {
				return err
			}
			if fail != nil {
				failures = append(failures, *fail)
			}
		}
		if err := c.Run.Persister.SaveResult(ctx, meta, tr); err != nil {
			return fmt.Errorf("assertion: save target result: %w", err)
		}
		res.Targets = append(res.Targets, tr)
	}

	switch c.Run.Mode {
	case SetExpected:
		c.Run.UpdateExpectedID(c.Class, c.Method)
	case RunTest:
		res.Result = Success
		if len(failures) > 0 {
			res.Result = Failure
		}
	}
	if err := c.Run.AddResult(c.Class, res); err != nil {
		return err
	}
	if len(failures) > 0 {
		return &AssertionError{Class: c.Class, Method: c.Method, ScreenshotID: screenshotID, Failures: failures}
	}
	return nil
}

// compare loads the baseline stored under expectedID and fills tr.
func (c *Checker) compare(ctx context.Context, meta persist.Metadata, expectedID string, shot *capture.Shot, tr *TargetResult) (*TargetFailure, error) {
	base := meta
	base.RunID = expectedID
	img, err := c.Run.Persister.LoadImage(ctx, base, persist.KindScreenshot)
	if err != nil {
		return nil, fmt.Errorf("assertion: load baseline %s: %w", tr.Target, err)
	}
	var prev TargetResult
	if err := c.Run.Persister.LoadResult(ctx, base, &prev); err != nil && !errors.Is(err, persist.ErrNotFound) {
		return nil, fmt.Errorf("assertion: load baseline result %s: %w", tr.Target, err)
	}
	baseline := ShotOf(img, prev.Excludes)

	d, err := Compare(shot, baseline, c.Comparator)
	if err != nil {
		return nil, fmt.Errorf("assertion: compare %s: %w", tr.Target, err)
	}
	tr.Diff = d
	if d.Succeeded() {
		tr.Result = Success
		return nil, nil
	}
	tr.Result = Failure
	c.Log.Info("assertion: mismatch", "class", c.Class, "method", c.Method,
		"target", tr.Target, "content", len(d.Content()), "size", len(d.Size()))

	diff := RenderDiff(shot.Image, baseline.Image, d)
	if err := c.Run.Persister.SaveImage(ctx, meta, persist.KindDiff, diff); err != nil {
		return nil, fmt.Errorf("assertion: save diff: %w", err)
	}
	return &TargetFailure{
		Target:   tr.Target,
		Diff:     d,
		Expected: baseline.Image,
		Actual:   shot.Image,
		Excludes: append(append([]image.Rectangle{}, shot.Excludes...), prev.Excludes...),
	}, nil
}
