// Package idgen generates the identifiers shotdiff attaches to runs and
// screenshots. Run ids sort by start time so the newest baseline is the
// lexically greatest.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator of the first n hex digits of a UUID v7's
// random tail. n is clamped to [4, 12].
func Short(n int) Generator {
	n = max(4, min(n, 12))
	return func() string {
		s := strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
		return s[len(s)-n:]
	}
}

// Timestamped prefixes gen with the UTC time as "20060102T150405Z_".
// now defaults to time.Now.
func Timestamped(gen Generator, now func() time.Time) Generator {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// RunID is the generator for run identifiers.
var RunID Generator = Timestamped(Short(8), nil)

// New produces a UUID v7.
func New() string { return uuid.Must(uuid.NewV7()).String() }

// RunTime extracts the start time encoded in a run id.
func RunTime(id string) (time.Time, error) {
	stamp, _, ok := strings.Cut(id, "_")
	if !ok {
		return time.Time{}, fmt.Errorf("idgen: run id %q has no timestamp", id)
	}
	t, err := time.Parse("20060102T150405Z", stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("idgen: run id %q: %w", id, err)
	}
	return t, nil
}
