// CLAUDE:SUMMARY Browser automation contract consumed by the capture pipeline, plus its error taxonomy.
// Package capture turns a DOM target on a live page into one stitched,
// pixel-accurate raster.
//
// The pipeline talks to the browser only through Handle. Geometry
// corrections for each browser/device come from a quirks.Quirks chosen once
// per session. A Session is used by one goroutine at a time: scroll steps
// depend on the previous scroll state.
//
// Usage:
//
//	s := capture.NewSession(tab, q, capture.WithLogger(logger))
//	shot, err := s.Capture(ctx, capture.Target{Selector: &capture.Selector{Query: "#main"}})
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Handle is one browser session. Implementations need not be safe for
// concurrent use; the pipeline never shares a Handle across goroutines.
type Handle interface {
	// TakeScreenshot returns the visible viewport as PNG bytes.
	TakeScreenshot(ctx context.Context) ([]byte, error)
	// ExecuteScript runs a JavaScript function expression with args and
	// returns its JSON-encoded result.
	ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	ScrollTo(ctx context.Context, x, y float64) error
	ScrollPosition(ctx context.Context) (x, y float64, err error)
	WindowSize(ctx context.Context) (w, h float64, err error)
	PixelRatio(ctx context.Context) (float64, error)
}

var (
	// ErrAutomation wraps any failure reported by the Handle.
	ErrAutomation = errors.New("capture: automation failure")
	// ErrElementNotFound is returned when a primary target selector matches nothing.
	ErrElementNotFound = errors.New("capture: element not found")
	// ErrInvalidArgument is returned for malformed targets or geometry.
	ErrInvalidArgument = errors.New("capture: invalid argument")
	// ErrSoftTimeout is returned by Poll when its budget runs out. Callers
	// log it and continue.
	ErrSoftTimeout = errors.New("capture: soft timeout")
)

func automation(op string, err error) error {
	return fmt.Errorf("capture: %s: %w: %w", op, ErrAutomation, err)
}

// eval runs script and decodes its result into out.
func eval(ctx context.Context, h Handle, name, script string, out any, args ...any) error {
	raw, err := h.ExecuteScript(ctx, script, args...)
	if err != nil {
		return automation(name, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return automation(name, fmt.Errorf("decode result: %w", err))
	}
	return nil
}
