// CLAUDE:SUMMARY Immutable comparison result: sorted content-diff and size-diff pixel sets.
package imgdiff

import (
	"encoding/json"
	"image"
	"slices"
)

// DiffPoints is the result of one comparison. Content holds pixels present in
// both images whose colors differ; Size holds pixels inside exactly one of the
// two images. Both sets are disjoint, sorted row-major and never modified
// after construction.
type DiffPoints struct {
	content []image.Point
	size    []image.Point
}

// NewDiffPoints copies and sorts both sets.
func NewDiffPoints(content, size []image.Point) *DiffPoints {
	return &DiffPoints{content: sortedCopy(content), size: sortedCopy(size)}
}

// Content returns a copy of the content-diff set.
func (d *DiffPoints) Content() []image.Point { return slices.Clone(d.content) }

// Size returns a copy of the size-diff set.
func (d *DiffPoints) Size() []image.Point { return slices.Clone(d.size) }

// Succeeded reports whether both sets are empty.
func (d *DiffPoints) Succeeded() bool { return len(d.content) == 0 && len(d.size) == 0 }

// Failed is the negation of Succeeded.
func (d *DiffPoints) Failed() bool { return !d.Succeeded() }

// Count is the total number of mismatching pixels.
func (d *DiffPoints) Count() int { return len(d.content) + len(d.size) }

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type diffJSON struct {
	ContentDiff []point `json:"contentDiff"`
	SizeDiff    []point `json:"sizeDiff"`
}

func (d *DiffPoints) MarshalJSON() ([]byte, error) {
	return json.Marshal(diffJSON{ContentDiff: toJSON(d.content), SizeDiff: toJSON(d.size)})
}

func (d *DiffPoints) UnmarshalJSON(data []byte) error {
	var v diffJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*d = *NewDiffPoints(fromJSON(v.ContentDiff), fromJSON(v.SizeDiff))
	return nil
}

func toJSON(pts []image.Point) []point {
	out := make([]point, len(pts))
	for i, p := range pts {
		out[i] = point{p.X, p.Y}
	}
	return out
}

func fromJSON(pts []point) []image.Point {
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = image.Pt(p.X, p.Y)
	}
	return out
}

func sortedCopy(pts []image.Point) []image.Point {
	out := slices.Clone(pts)
	slices.SortFunc(out, func(a, b image.Point) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	return out
}
