// CLAUDE:SUMMARY Persister contract for screenshots, diff images, results and the class/method -> baseline run id map.
// Package persist stores what a run produces: screenshot and diff images,
// per-target and per-class results, and the expected-id map that points
// each test method at the run holding its baseline.
//
// Two backends implement Persister: Files (a directory tree of PNG and
// indented JSON) and SQLite (one database, images as PNG blobs).
//
// Usage:
//
//	p, err := persist.NewFiles("results")
//	err = p.SaveImage(ctx, meta, persist.KindScreenshot, img)
//	ids, err := p.LoadExpectedIDs(ctx)
package persist

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"strconv"
	"strings"

	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/horosafe"
)

// ErrNotFound is returned by Load* when nothing was stored under the key.
var ErrNotFound = errors.New("persist: not found")

// Kind distinguishes images stored for the same Metadata.
type Kind string

const (
	KindScreenshot Kind = "screenshot"
	KindDiff       Kind = "diff"
)

// ExpectedIDs maps class -> method -> run id of the accepted baseline.
type ExpectedIDs map[string]map[string]string

// Lookup returns the baseline run id for class and method.
func (e ExpectedIDs) Lookup(class, method string) (string, bool) {
	id, ok := e[class][method]
	return id, ok
}

// Metadata addresses one stored artefact. A Metadata with only RunID and
// Class addresses the class-level result.
type Metadata struct {
	RunID        string          `json:"runId"`
	Class        string          `json:"className"`
	Method       string          `json:"methodName,omitempty"`
	ScreenshotID string          `json:"screenshotId,omitempty"`
	Selector     string          `json:"selector,omitempty"`
	Index        int             `json:"index,omitempty"`
	Rect         *geom.Rectangle `json:"rectangle,omitempty"`
	Capabilities string          `json:"capabilities,omitempty"`
}

// ClassLevel reports whether m addresses a class result rather than a target.
func (m Metadata) ClassLevel() bool { return m.Method == "" && m.ScreenshotID == "" }

// Validate checks the components that become path segments or keys.
func (m Metadata) Validate() error {
	if err := horosafe.ValidateIdentifier(m.RunID); err != nil {
		return fmt.Errorf("persist: run id: %w", err)
	}
	if err := horosafe.ValidateIdentifier(m.Class); err != nil {
		return fmt.Errorf("persist: class: %w", err)
	}
	if m.ClassLevel() {
		return nil
	}
	if err := horosafe.ValidateIdentifier(m.Method); err != nil {
		return fmt.Errorf("persist: method: %w", err)
	}
	if err := horosafe.ValidateIdentifier(m.ScreenshotID); err != nil {
		return fmt.Errorf("persist: screenshot id: %w", err)
	}
	return nil
}

// Name is the file-name stem of a target artefact:
// method_screenshotId[_selector_hash_index|_x_y_w_h]_capabilities.
// The selector is sanitised for readability and followed by a hash of its
// raw text, so selectors that sanitise alike still get distinct names.
func (m Metadata) Name() string {
	parts := []string{m.Method, m.ScreenshotID}
	switch {
	case m.Selector != "":
		parts = append(parts, horosafe.Identifier(m.Selector), selectorHash(m.Selector), strconv.Itoa(m.Index))
	case m.Rect != nil:
		r := m.Rect.Round()
		parts = append(parts, fmt.Sprintf("%d_%d_%d_%d", int(r.X), int(r.Y), int(r.W), int(r.H)))
	}
	if m.Capabilities != "" {
		parts = append(parts, horosafe.Identifier(m.Capabilities))
	}
	return strings.Join(parts, "_")
}

// selectorHash is the FNV-1a 32-bit hash of sel as 8 hex digits.
func selectorHash(sel string) string {
	h := fnv.New32a()
	h.Write([]byte(sel))
	return fmt.Sprintf("%08x", h.Sum32())
}

// Persister stores run artefacts. Implementations are safe for concurrent use.
type Persister interface {
	SaveImage(ctx context.Context, m Metadata, kind Kind, img image.Image) error
	LoadImage(ctx context.Context, m Metadata, kind Kind) (image.Image, error)
	// SaveResult stores v as JSON. A class-level Metadata stores the class result.
	SaveResult(ctx context.Context, m Metadata, v any) error
	LoadResult(ctx context.Context, m Metadata, v any) error
	SaveExpectedIDs(ctx context.Context, ids ExpectedIDs) error
	LoadExpectedIDs(ctx context.Context) (ExpectedIDs, error)
	Close() error
}
