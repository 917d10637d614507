package assertion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"sync"

	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/idgen"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/persist"
)

// ExecMode decides what AssertView does with a capture.
type ExecMode string

const (
	// TakeScreenshot only captures and stores.
	TakeScreenshot ExecMode = "TAKE_SCREENSHOT"
	// SetExpected stores the capture and records this run as the baseline.
	SetExpected ExecMode = "SET_EXPECTED"
	// RunTest compares the capture with the recorded baseline.
	RunTest ExecMode = "RUN_TEST"
)

// ParseExecMode accepts the mode names above, case-sensitively.
func ParseExecMode(s string) (ExecMode, error) {
	switch m := ExecMode(s); m {
	case TakeScreenshot, SetExpected, RunTest:
		return m, nil
	case "":
		return RunTest, nil
	}
	return "", fmt.Errorf("assertion: unknown exec mode %q", s)
}

var (
	// ErrClassActive is returned by BeginClass for a class already begun.
	ErrClassActive = errors.New("assertion: class already initialised")
	// ErrClassUnknown is returned for a class that was never begun.
	ErrClassUnknown = errors.New("assertion: class not initialised")
	// ErrNoBaseline is returned in RunTest mode when a method has no expected id.
	ErrNoBaseline = errors.New("assertion: no expected id")
)

// Outcome is the verdict for a target, a screenshot, or a class.
type Outcome string

const (
	Success Outcome = "SUCCESS"
	Failure Outcome = "FAILURE"
)

// TargetResult records one compared (or only captured) target.
type TargetResult struct {
	Target   string              `json:"target"`
	Rect     geom.Rectangle      `json:"rectangle"`
	Result   Outcome             `json:"result,omitempty"`
	Excludes []image.Rectangle   `json:"excludes,omitempty"`
	Diff     *imgdiff.DiffPoints `json:"diff,omitempty"`
}

// ScreenshotResult records one AssertView call.
type ScreenshotResult struct {
	ScreenshotID string         `json:"screenshotId"`
	Method       string         `json:"methodName"`
	Result       Outcome        `json:"result,omitempty"`
	ExpectedID   string         `json:"expectedId,omitempty"`
	Capabilities string         `json:"capabilities,omitempty"`
	Targets      []TargetResult `json:"targetResults"`
}

// TestResult is persisted once per class by EndClass.
type TestResult struct {
	RunID       string             `json:"resultId"`
	Result      Outcome            `json:"result,omitempty"`
	Screenshots []ScreenshotResult `json:"screenshotResults"`
}

type classState struct {
	screenshots []ScreenshotResult
	result      Outcome
}

type expectState struct {
	ids    map[string]string
	failed bool
}

// Run is the state of one test run shared by every worker: the run id,
// the exec mode, the baseline map loaded at start, and per-class results.
type Run struct {
	ID        string
	Mode      ExecMode
	Persister persist.Persister

	log      *slog.Logger
	expected persist.ExpectedIDs // read-only after NewRun

	mu      sync.Mutex
	classes map[string]*classState
	updates map[string]*expectState
	merged  persist.ExpectedIDs
}

// RunOption configures NewRun.
type RunOption func(*Run)

// WithRunID overrides the generated run id.
func WithRunID(id string) RunOption { return func(r *Run) { r.ID = id } }

// WithRunLogger sets the logger. Default: slog.Default().
func WithRunLogger(l *slog.Logger) RunOption { return func(r *Run) { r.log = l } }

// NewRun starts a run and loads the expected ids. A store with no expected
// ids yet is not an error.
func NewRun(ctx context.Context, p persist.Persister, mode ExecMode, opts ...RunOption) (*Run, error) {
	r := &Run{
		ID:        idgen.RunID(),
		Mode:      mode,
		Persister: p,
		log:       slog.Default(),
		expected:  persist.ExpectedIDs{},
		classes:   map[string]*classState{},
		updates:   map[string]*expectState{},
		merged:    persist.ExpectedIDs{},
	}
	for _, o := range opts {
		o(r)
	}

	ids, err := p.LoadExpectedIDs(ctx)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		r.log.Info("assertion: no expected ids yet")
	case err != nil:
		return nil, fmt.Errorf("assertion: load expected ids: %w", err)
	default:
		r.expected = ids
		for class, methods := range ids {
			r.merged[class] = maps.Clone(methods)
		}
	}
	r.log.Debug("assertion: run started", "run_id", r.ID, "mode", r.Mode, "classes", len(r.expected))
	return r, nil
}

// BeginClass initialises the accumulator for class. A class may only be
// begun once at a time.
func (r *Run) BeginClass(class string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[class]; ok {
		return fmt.Errorf("%w: %s", ErrClassActive, class)
	}
	r.classes[class] = &classState{}
	return nil
}

// AddResult appends a screenshot result to class. One failure fails the class.
func (r *Run) AddResult(class string, res ScreenshotResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.classes[class]
	if !ok {
		return fmt.Errorf("%w: %s", ErrClassUnknown, class)
	}
	st.screenshots = append(st.screenshots, res)
	switch res.Result {
	case Success:
		if st.result == "" {
			st.result = Success
		}
	case Failure:
		st.result = Failure
		r.log.Debug("assertion: class failed", "class", class, "screenshot", res.ScreenshotID)
	}
	return nil
}

// EndClass persists the class result and, in SetExpected mode, merges the
// class's new expected ids and saves the whole map. A class whose capture
// failed keeps its previous ids.
func (r *Run) EndClass(ctx context.Context, class string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.classes[class]
	if !ok {
		return fmt.Errorf("%w: %s", ErrClassUnknown, class)
	}
	delete(r.classes, class)

	res := TestResult{RunID: r.ID, Result: st.result, Screenshots: st.screenshots}
	if err := r.Persister.SaveResult(ctx, persist.Metadata{RunID: r.ID, Class: class}, res); err != nil {
		return fmt.Errorf("assertion: save result %s: %w", class, err)
	}

	if r.Mode != SetExpected {
		return nil
	}
	up, ok := r.updates[class]
	delete(r.updates, class)
	if !ok || len(up.ids) == 0 {
		return nil
	}
	if up.failed {
		r.log.Info("assertion: expected ids not updated", "class", class)
		return nil
	}
	if r.merged[class] == nil {
		r.merged[class] = map[string]string{}
	}
	maps.Copy(r.merged[class], up.ids)
	if err := r.Persister.SaveExpectedIDs(ctx, r.merged); err != nil {
		return fmt.Errorf("assertion: save expected ids: %w", err)
	}
	r.log.Info("assertion: expected ids saved", "class", class, "methods", len(up.ids))
	return nil
}

// ExpectedID returns the run id holding the baseline for class#method.
func (r *Run) ExpectedID(class, method string) (string, error) {
	id, ok := r.expected.Lookup(class, method)
	if !ok {
		return "", fmt.Errorf("%w: %s#%s", ErrNoBaseline, class, method)
	}
	return id, nil
}

// UpdateExpectedID marks this run as the baseline for class#method.
// No-op outside SetExpected mode.
func (r *Run) UpdateExpectedID(class, method string) {
	if r.Mode != SetExpected {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	up := r.update(class)
	up.ids[method] = r.ID
}

// CancelExpectedID keeps class's previous baselines when EndClass runs.
func (r *Run) CancelExpectedID(class string) {
	if r.Mode != SetExpected {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.update(class).failed = true
	r.log.Debug("assertion: expected id update cancelled", "class", class)
}

func (r *Run) update(class string) *expectState {
	up, ok := r.updates[class]
	if !ok {
		up = &expectState{ids: map[string]string{}}
		r.updates[class] = up
	}
	return up
}
