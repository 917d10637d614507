// CLAUDE:SUMMARY Groups diff pixels into marker rectangles: nearby points merge until no two groups are within reach.
package diffimage

import (
	"image"

	"github.com/hazyhaar/shotdiff/imgdiff"
)

// GroupDistance is how far apart, in pixels, two diff points may be and
// still be marked by one rectangle.
const GroupDistance = 10

// Areas returns the rectangles that enclose d's content diff points, grouped
// by GroupDistance, followed by the bounding box of the size diff if any.
// Rectangles are in the same frame as the points.
func Areas(d *imgdiff.DiffPoints) []image.Rectangle {
	areas := group(d.Content(), GroupDistance)
	if size := d.Size(); len(size) > 0 {
		areas = append(areas, bounds(size))
	}
	return areas
}

func group(pts []image.Point, dist int) []image.Rectangle {
	var groups []image.Rectangle
	for _, p := range pts {
		groups = append(groups, image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
		groups = mergeLast(groups, dist)
	}
	// A merge can bring an earlier group into reach of another.
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(groups) && !changed; i++ {
			for j := i + 1; j < len(groups); j++ {
				if near(groups[i], groups[j], dist) {
					groups[i] = groups[i].Union(groups[j])
					groups = append(groups[:j], groups[j+1:]...)
					changed = true
					break
				}
			}
		}
	}
	return groups
}

// mergeLast folds the newest group into every existing group it touches.
func mergeLast(groups []image.Rectangle, dist int) []image.Rectangle {
	last := groups[len(groups)-1]
	kept := groups[:0]
	for _, g := range groups[:len(groups)-1] {
		if near(g, last, dist) {
			last = last.Union(g)
			continue
		}
		kept = append(kept, g)
	}
	return append(kept, last)
}

func near(a, b image.Rectangle, dist int) bool {
	return a.Inset(-dist).Overlaps(b)
}

func bounds(pts []image.Point) image.Rectangle {
	r := image.Rectangle{Min: pts[0], Max: pts[0].Add(image.Pt(1, 1))}
	for _, p := range pts[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}
