package geom

import (
	"regexp"
	"strconv"
)

// Edges holds one value per side, in CSS pixels.
type Edges struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Margin is the element margin read from computed style.
type Margin = Edges

// BorderWidth is the element border read from computed style.
type BorderWidth = Edges

// Horizontal returns Left+Right.
func (e Edges) Horizontal() float64 { return e.Left + e.Right }

// Vertical returns Top+Bottom.
func (e Edges) Vertical() float64 { return e.Top + e.Bottom }

var cssNumber = regexp.MustCompile(`-?[\d.]+`)

// ParseLength extracts the first signed decimal of a computed-style value
// such as "1.5px". Unparseable input yields 0.
func ParseLength(s string) float64 {
	m := cssNumber.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseEdges reads top/right/bottom/left from a decoded JSON object whose
// values are either numbers or CSS length strings.
func ParseEdges(m map[string]any) Edges {
	return Edges{
		Top:    lengthOf(m["top"]),
		Right:  lengthOf(m["right"]),
		Bottom: lengthOf(m["bottom"]),
		Left:   lengthOf(m["left"]),
	}
}

func lengthOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		return ParseLength(x)
	}
	return 0
}
