// CLAUDE:SUMMARY Registers shotdiff MCP tools: compare, render_diff, capture. Images travel as base64 PNG or as references into the Persister.
package mcptools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/shotdiff/assertion"
	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/diffimage"
	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/horosafe"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/kit"
	"github.com/hazyhaar/shotdiff/persist"
)

// CaptureFunc loads url in a fresh page and captures t.
type CaptureFunc func(ctx context.Context, url string, t capture.Target) (*capture.Shot, error)

// Tools holds what the MCP tools need. Persister and Capture are optional;
// tools that need a missing one report a tool error.
type Tools struct {
	Persister persist.Persister
	Capture   CaptureFunc
	Logger    *slog.Logger
}

// Register adds every shotdiff tool to srv.
func (t *Tools) Register(srv *mcp.Server) {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	t.registerCompare(srv)
	t.registerRenderDiff(srv)
	t.registerCapture(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// ImageRef names an image: inline base64 PNG, or a stored screenshot.
type ImageRef struct {
	PNG string `json:"png,omitempty"`
	persist.Metadata
}

var imageRefSchema = map[string]any{
	"type":        "object",
	"description": "Either png (base64) or a stored screenshot reference (runId, className, methodName, screenshotId, selector, index, capabilities)",
	"properties": map[string]any{
		"png":          map[string]any{"type": "string", "description": "Base64-encoded PNG"},
		"runId":        map[string]any{"type": "string"},
		"className":    map[string]any{"type": "string"},
		"methodName":   map[string]any{"type": "string"},
		"screenshotId": map[string]any{"type": "string"},
		"selector":     map[string]any{"type": "string"},
		"index":        map[string]any{"type": "integer"},
		"capabilities": map[string]any{"type": "string"},
	},
}

var rectSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"x": map[string]any{"type": "integer"}, "y": map[string]any{"type": "integer"},
		"width": map[string]any{"type": "integer"}, "height": map[string]any{"type": "integer"},
	},
}

var errNoPersister = errors.New("mcptools: no persister configured")

func (t *Tools) load(ctx context.Context, ref ImageRef) (image.Image, error) {
	if ref.PNG != "" {
		data, err := base64.StdEncoding.DecodeString(ref.PNG)
		if err != nil {
			return nil, fmt.Errorf("mcptools: png: %w", err)
		}
		if int64(len(data)) > horosafe.MaxImageBytes {
			return nil, fmt.Errorf("mcptools: png: %w", horosafe.ErrTooLarge)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("mcptools: png: %w", err)
		}
		return img, nil
	}
	if t.Persister == nil {
		return nil, errNoPersister
	}
	if err := ref.Metadata.Validate(); err != nil {
		return nil, err
	}
	return t.Persister.LoadImage(ctx, ref.Metadata, persist.KindScreenshot)
}

type pixelRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func toImageRects(rs []pixelRect) []image.Rectangle {
	out := make([]image.Rectangle, len(rs))
	for i, r := range rs {
		out[i] = image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
	}
	return out
}

func fromImageRects(rs []image.Rectangle) []pixelRect {
	out := make([]pixelRect, len(rs))
	for i, r := range rs {
		out[i] = pixelRect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
	}
	return out
}

// --- compare ---

type compareRequest struct {
	Expected   ImageRef        `json:"expected"`
	Actual     ImageRef        `json:"actual"`
	Excludes   []pixelRect     `json:"excludes,omitempty"`
	Comparator imgdiff.Options `json:"comparator"`
}

type compareResponse struct {
	Succeeded bool                `json:"succeeded"`
	Content   int                 `json:"contentCount"`
	Size      int                 `json:"sizeCount"`
	Areas     []pixelRect         `json:"areas,omitempty"`
	Diff      *imgdiff.DiffPoints `json:"diff"`
}

func (t *Tools) compare(ctx context.Context, r *compareRequest) (image.Image, image.Image, *imgdiff.DiffPoints, error) {
	cmp, err := imgdiff.New(r.Comparator)
	if err != nil {
		return nil, nil, nil, err
	}
	expected, err := t.load(ctx, r.Expected)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("expected: %w", err)
	}
	actual, err := t.load(ctx, r.Actual)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("actual: %w", err)
	}
	excludes := toImageRects(r.Excludes)
	cur, base := assertion.ShotOf(actual, excludes), assertion.ShotOf(expected, nil)
	d, err := assertion.Compare(cur, base, cmp)
	if err != nil {
		return nil, nil, nil, err
	}
	return base.Image, cur.Image, d, nil
}

func summary(d *imgdiff.DiffPoints) compareResponse {
	return compareResponse{
		Succeeded: d.Succeeded(),
		Content:   len(d.Content()),
		Size:      len(d.Size()),
		Areas:     fromImageRects(diffimage.Areas(d)),
		Diff:      d,
	}
}

func (t *Tools) registerCompare(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shotdiff_compare",
		Description: "Compare an actual screenshot with its expected baseline pixel by pixel. Returns diff points and grouped diff areas.",
		InputSchema: inputSchema(map[string]any{
			"expected":   imageRefSchema,
			"actual":     imageRefSchema,
			"excludes":   map[string]any{"type": "array", "items": rectSchema, "description": "Pixel rectangles ignored on both images"},
			"comparator": map[string]any{"type": "object", "description": "kind: strict | ignore_clear_pixels | tolerance; tolerance: max channel delta"},
		}, []string{"expected", "actual"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		_, _, d, err := t.compare(ctx, req.(*compareRequest))
		if err != nil {
			return nil, err
		}
		return summary(d), nil
	}
	endpoint = kit.Logging(t.Logger, tool.Name)(endpoint)
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[compareRequest]())
}

// --- render_diff ---

func (t *Tools) registerRenderDiff(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shotdiff_render_diff",
		Description: "Render expected and actual side by side with differing areas marked. Returns the PNG and the comparison summary.",
		InputSchema: inputSchema(map[string]any{
			"expected":   imageRefSchema,
			"actual":     imageRefSchema,
			"excludes":   map[string]any{"type": "array", "items": rectSchema},
			"comparator": map[string]any{"type": "object"},
		}, []string{"expected", "actual"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		expected, actual, d, err := t.compare(ctx, req.(*compareRequest))
		if err != nil {
			return nil, err
		}
		return imageResult(assertion.RenderDiff(actual, expected, d), summary(d))
	}
	endpoint = kit.Logging(t.Logger, tool.Name)(endpoint)
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[compareRequest]())
}

func imageResult(img image.Image, meta any) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mcptools: encode: %w", err)
	}
	text, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("mcptools: marshal: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: string(text)},
		&mcp.ImageContent{Data: buf.Bytes(), MIMEType: "image/png"},
	}}, nil
}

// --- capture ---

type captureRequest struct {
	URL          string   `json:"url"`
	Selector     string   `json:"selector,omitempty"`
	Index        int      `json:"index,omitempty"`
	Hidden       []string `json:"hidden,omitempty"`
	Excludes     []string `json:"excludes,omitempty"`
	OwnsScroll   bool     `json:"ownsScroll,omitempty"`
	MoveToOrigin bool     `json:"moveToOrigin,omitempty"`
}

type captureResponse struct {
	Rect     geom.Rectangle `json:"rectangle"`
	Scale    float64        `json:"scale"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Excludes []pixelRect    `json:"excludes,omitempty"`
}

func (r *captureRequest) target() capture.Target {
	t := capture.Page()
	if r.Selector != "" {
		t.Selector = &capture.Selector{Query: r.Selector, Index: r.Index}
	}
	t.Hidden = r.Hidden
	for _, q := range r.Excludes {
		t.Excludes = append(t.Excludes, capture.Area{Query: q})
	}
	t.OwnsScroll = r.OwnsScroll
	t.MoveToOrigin = r.MoveToOrigin
	return t
}

func (t *Tools) registerCapture(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shotdiff_capture",
		Description: "Load a URL and capture the whole page or one element, scrolling and stitching content taller than the viewport.",
		InputSchema: inputSchema(map[string]any{
			"url":          map[string]any{"type": "string", "description": "Page to load"},
			"selector":     map[string]any{"type": "string", "description": "CSS selector of the target; whole page when empty"},
			"index":        map[string]any{"type": "integer", "description": "Which match of selector (default 0)"},
			"hidden":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Selectors hidden during capture"},
			"excludes":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Selectors reported as exclude areas"},
			"ownsScroll":   map[string]any{"type": "boolean", "description": "Capture the element's own scrollable content"},
			"moveToOrigin": map[string]any{"type": "boolean", "description": "Move the target to the page origin while capturing"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*captureRequest)
		if t.Capture == nil {
			return nil, errors.New("mcptools: capture is not available without a browser")
		}
		if r.URL == "" {
			return nil, errors.New("url is required")
		}
		target := r.target()
		if err := target.Validate(); err != nil {
			return nil, err
		}
		shot, err := t.Capture(ctx, r.URL, target)
		if err != nil {
			return nil, err
		}
		return imageResult(shot.Image, captureResponse{
			Rect:     shot.Rect,
			Scale:    shot.Scale,
			Width:    shot.Image.Bounds().Dx(),
			Height:   shot.Image.Bounds().Dy(),
			Excludes: fromImageRects(shot.Excludes),
		})
	}
	endpoint = kit.Logging(t.Logger, tool.Name)(endpoint)
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[captureRequest]())
}
