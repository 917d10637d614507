package capture

import (
	"context"
	"fmt"
	"time"
)

// Clock abstracts time for polling and settle waits.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Poll evaluates cond every interval until it reports true, returns an
// error, or timeout elapses. Exhausting the budget yields ErrSoftTimeout.
func Poll(ctx context.Context, clock Clock, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := clock.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrSoftTimeout, timeout)
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return automation("poll", err)
		}
	}
}
