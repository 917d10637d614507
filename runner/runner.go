// CLAUDE:SUMMARY Fixed-size worker pool: each worker owns one browser page, reopened when its browser asks for a recycle, and runs cases (navigate, optional signal wait, AssertView) against a shared assertion.Run.
// Package runner executes configured cases on a fixed number of workers.
// Each worker opens one page and keeps it until its browser asks to be
// recycled; cases are handed out from a queue. Classes are begun before
// the first of their cases and ended after the last one.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/shotdiff/assertion"
	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/observability"
	"github.com/hazyhaar/shotdiff/quirks"
)

// Page is a browser tab exclusively owned by one worker.
type Page interface {
	capture.Handle
	Navigate(ctx context.Context, url string) error
	Close() error
}

// Recycler is implemented by pages whose browser may need a restart. When
// RecycleDue reports true, the worker closes the page and opens a new one
// before its next case.
type Recycler interface {
	RecycleDue() bool
}

// OpenFunc opens the page for worker n.
type OpenFunc func(ctx context.Context, n int) (Page, error)

// Waiter blocks until the page under test asks for a screenshot.
type Waiter interface {
	Wait(ctx context.Context, id string, timeout time.Duration) error
}

// Screenshot is one AssertView call of a case.
type Screenshot struct {
	ID         string
	WaitSignal bool
	Targets    []capture.Target
}

// Case is one test method run on one page.
type Case struct {
	Class       string
	Method      string
	URL         string
	Screenshots []Screenshot
}

// Outcome is the result of one case. Err is an *assertion.AssertionError
// for visual mismatches and any other error for automation failures.
type Outcome struct {
	Class    string
	Method   string
	Worker   int
	Err      error
	Duration time.Duration
}

// Passed reports whether the case ran without error.
func (o Outcome) Passed() bool { return o.Err == nil }

// Pool runs cases against Run.
type Pool struct {
	Run          *assertion.Run
	Open         OpenFunc
	Workers      int
	Quirks       quirks.Quirks
	Capabilities quirks.Capabilities
	Comparator   imgdiff.Comparator
	CaptureOpts  []capture.Option

	// Signal and SignalTimeout serve Screenshot.WaitSignal. The wait id is
	// the worker number, published to the page as window.shotdiffWorker.
	Signal        Waiter
	SignalTimeout time.Duration

	// Metrics, when set, receives case durations and diff pixel counts.
	Metrics observability.Recorder

	Logger *slog.Logger
}

const scriptPublishWorker = `(id) => { window.shotdiffWorker = id; return true; }`

// Execute runs every case and returns one Outcome per case, in input order.
// The error is non-nil only when a page could not be opened, a class could
// not be begun or ended, or ctx was cancelled.
func (p *Pool) Execute(ctx context.Context, cases []Case) ([]Outcome, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, max(len(cases), 1))

	remaining := map[string]int{}
	for _, c := range cases {
		if remaining[c.Class] == 0 {
			if err := p.Run.BeginClass(c.Class); err != nil {
				return nil, fmt.Errorf("runner: %w", err)
			}
		}
		remaining[c.Class]++
	}

	var mu sync.Mutex
	var endErr error
	finish := func(class string) {
		mu.Lock()
		remaining[class]--
		last := remaining[class] == 0
		mu.Unlock()
		if !last {
			return
		}
		if err := p.Run.EndClass(context.WithoutCancel(ctx), class); err != nil {
			mu.Lock()
			endErr = err
			mu.Unlock()
			log.Error("runner: end class", "class", class, "error", err)
		}
	}

	queue := make(chan int)
	out := make([]Outcome, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers + 1)
	g.Go(func() error {
		defer close(queue)
		for i := range cases {
			select {
			case queue <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for n := range workers {
		g.Go(func() error {
			page, err := p.Open(gctx, n)
			if err != nil {
				return fmt.Errorf("runner: open page for worker %d: %w", n, err)
			}
			defer func() {
				if page != nil {
					page.Close()
				}
			}()
			for i := range queue {
				if r, ok := page.(Recycler); ok && r.RecycleDue() {
					log.Info("runner: reopening page for browser recycle", "worker", n)
					page.Close()
					if page, err = p.Open(gctx, n); err != nil {
						page = nil
						err = fmt.Errorf("runner: reopen page for worker %d: %w", n, err)
						out[i] = Outcome{Class: cases[i].Class, Method: cases[i].Method, Worker: n, Err: err}
						finish(cases[i].Class)
						return err
					}
				}
				out[i] = p.runCase(gctx, log, n, page, cases[i])
				finish(cases[i].Class)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, endErr
}

func (p *Pool) runCase(ctx context.Context, log *slog.Logger, n int, page Page, c Case) Outcome {
	start := time.Now()
	o := Outcome{Class: c.Class, Method: c.Method, Worker: n}
	o.Err = p.steps(ctx, n, page, c)
	o.Duration = time.Since(start)

	switch {
	case o.Err == nil:
		log.Info("runner: case passed", "class", c.Class, "method", c.Method, "worker", n, "duration", o.Duration)
	case assertion.IsAssertion(o.Err):
		log.Warn("runner: case failed", "class", c.Class, "method", c.Method, "worker", n, "error", o.Err)
	default:
		log.Error("runner: case error", "class", c.Class, "method", c.Method, "worker", n, "error", o.Err)
	}
	p.record(o)
	return o
}

func (p *Pool) record(o Outcome) {
	if p.Metrics == nil {
		return
	}
	result := "passed"
	var ae *assertion.AssertionError
	switch {
	case errors.As(o.Err, &ae):
		result = "failed"
		for _, f := range ae.Failures {
			p.Metrics.Record(&observability.Metric{
				Name:   observability.DiffPixels,
				RunID:  p.Run.ID,
				Value:  float64(f.Diff.Count()),
				Unit:   "pixels",
				Labels: map[string]string{"class": o.Class, "method": o.Method, "screenshot": ae.ScreenshotID, "target": f.Target},
			})
		}
	case o.Err != nil:
		result = "error"
	}
	p.Metrics.Record(&observability.Metric{
		Name:   observability.CaseDuration,
		RunID:  p.Run.ID,
		Value:  float64(o.Duration.Milliseconds()),
		Unit:   "milliseconds",
		Labels: map[string]string{"class": o.Class, "method": o.Method, "result": result},
	})
}

func (p *Pool) steps(ctx context.Context, n int, page Page, c Case) error {
	if err := page.Navigate(ctx, c.URL); err != nil {
		p.Run.CancelExpectedID(c.Class)
		return err
	}
	if _, err := page.ExecuteScript(ctx, scriptPublishWorker, n); err != nil {
		return fmt.Errorf("runner: publish worker id: %w", err)
	}

	chk := p.Run.Checker(c.Class, c.Method, page, p.Quirks, p.CaptureOpts...)
	chk.Comparator = p.Comparator
	chk.Capabilities = p.Capabilities

	var failed error
	for _, s := range c.Screenshots {
		if s.WaitSignal && p.Signal != nil {
			if err := p.Signal.Wait(ctx, strconv.Itoa(n), p.SignalTimeout); err != nil {
				p.Run.CancelExpectedID(c.Class)
				return err
			}
		}
		err := chk.AssertView(ctx, s.ID, s.Targets...)
		switch {
		case err == nil:
		case assertion.IsAssertion(err):
			// Later screenshots still run; the first mismatch is reported.
			if failed == nil {
				failed = err
			}
		default:
			return err
		}
	}
	return failed
}
