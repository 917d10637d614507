package mcptools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/shotdiff/assertion"
	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/capture/capturetest"
	"github.com/hazyhaar/shotdiff/geom"
	"github.com/hazyhaar/shotdiff/persist"
	"github.com/hazyhaar/shotdiff/quirks"
)

var testImpl = &mcp.Implementation{Name: "shotdiff-test", Version: "0.0.1"}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encode(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func mcpSession(t *testing.T, tools *Tools) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	tools.Register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return result
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result := call(t, session, name, args)
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_CompareIdentical(t *testing.T) {
	session := mcpSession(t, &Tools{Logger: quiet})
	img := encode(t, solid(8, 8, color.RGBA{10, 20, 30, 255}))

	text := callTool(t, session, "shotdiff_compare", map[string]any{
		"expected": map[string]any{"png": img},
		"actual":   map[string]any{"png": img},
	})
	var resp compareResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Succeeded || resp.Content != 0 || resp.Size != 0 {
		t.Errorf("resp = %+v, want success", resp)
	}
}

func TestMCP_CompareDiffAndTolerance(t *testing.T) {
	session := mcpSession(t, &Tools{Logger: quiet})
	a := solid(8, 8, color.RGBA{10, 20, 30, 255})
	b := solid(8, 8, color.RGBA{10, 20, 30, 255})
	b.SetRGBA(3, 4, color.RGBA{14, 20, 30, 255})
	args := map[string]any{
		"expected": map[string]any{"png": encode(t, a)},
		"actual":   map[string]any{"png": encode(t, b)},
	}

	var resp compareResponse
	if err := json.Unmarshal([]byte(callTool(t, session, "shotdiff_compare", args)), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Succeeded || resp.Content != 1 {
		t.Fatalf("strict resp = %+v, want one content diff", resp)
	}
	if got := resp.Diff.Content(); len(got) != 1 || got[0] != image.Pt(3, 4) {
		t.Errorf("diff points = %v", got)
	}
	if len(resp.Areas) != 1 {
		t.Errorf("areas = %v, want one", resp.Areas)
	}

	args["comparator"] = map[string]any{"kind": "tolerance", "tolerance": 5}
	if err := json.Unmarshal([]byte(callTool(t, session, "shotdiff_compare", args)), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Succeeded {
		t.Errorf("tolerance resp = %+v, want success", resp)
	}
}

func TestMCP_CompareExcludes(t *testing.T) {
	session := mcpSession(t, &Tools{Logger: quiet})
	a := solid(8, 8, color.RGBA{255, 255, 255, 255})
	b := solid(8, 8, color.RGBA{255, 255, 255, 255})
	b.SetRGBA(1, 1, color.RGBA{0, 0, 0, 255})

	text := callTool(t, session, "shotdiff_compare", map[string]any{
		"expected": map[string]any{"png": encode(t, a)},
		"actual":   map[string]any{"png": encode(t, b)},
		"excludes": []map[string]any{{"x": 0, "y": 0, "width": 2, "height": 2}},
	})
	if !strings.Contains(text, `"succeeded":true`) {
		t.Errorf("text = %s, want success", text)
	}
}

func TestMCP_CompareFromPersister(t *testing.T) {
	store, err := persist.NewFiles(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	base := persist.Metadata{RunID: "r1", Class: "Home", Method: "top", ScreenshotID: "hero", Selector: "body"}
	cur := base
	cur.RunID = "r2"
	if err := store.SaveImage(ctx, base, persist.KindScreenshot, solid(4, 4, color.RGBA{1, 2, 3, 255})); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveImage(ctx, cur, persist.KindScreenshot, solid(4, 5, color.RGBA{1, 2, 3, 255})); err != nil {
		t.Fatal(err)
	}

	session := mcpSession(t, &Tools{Persister: store, Logger: quiet})
	text := callTool(t, session, "shotdiff_compare", map[string]any{
		"expected": base,
		"actual":   cur,
	})
	var resp compareResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Succeeded || resp.Size != 4 {
		t.Errorf("resp = %+v, want 4 size diffs", resp)
	}
}

func TestMCP_CompareErrors(t *testing.T) {
	session := mcpSession(t, &Tools{Logger: quiet})
	img := encode(t, solid(2, 2, color.RGBA{A: 255}))

	tests := map[string]map[string]any{
		"bad base64": {
			"expected": map[string]any{"png": "%%%"},
			"actual":   map[string]any{"png": img},
		},
		"no persister": {
			"expected": map[string]any{"runId": "r", "className": "C"},
			"actual":   map[string]any{"png": img},
		},
		"bad comparator": {
			"expected":   map[string]any{"png": img},
			"actual":     map[string]any{"png": img},
			"comparator": map[string]any{"kind": "fuzzy"},
		},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if err := call(t, session, "shotdiff_compare", args).GetError(); err == nil {
				t.Error("expected tool error")
			}
		})
	}
}

func TestMCP_RenderDiff(t *testing.T) {
	session := mcpSession(t, &Tools{Logger: quiet})
	a := solid(10, 10, color.RGBA{200, 200, 200, 255})
	b := solid(10, 10, color.RGBA{200, 200, 200, 255})
	b.SetRGBA(5, 5, color.RGBA{0, 0, 0, 255})

	result := call(t, session, "shotdiff_render_diff", map[string]any{
		"expected": map[string]any{"png": encode(t, a)},
		"actual":   map[string]any{"png": encode(t, b)},
	})
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	if len(result.Content) != 2 {
		t.Fatalf("content = %d items, want 2", len(result.Content))
	}
	ic, ok := result.Content[1].(*mcp.ImageContent)
	if !ok {
		t.Fatalf("content[1] = %T, want ImageContent", result.Content[1])
	}
	if ic.MIMEType != "image/png" {
		t.Errorf("mime = %q", ic.MIMEType)
	}
	img, err := png.Decode(bytes.NewReader(ic.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() <= 20 {
		t.Errorf("diff width = %d, want both sides", img.Bounds().Dx())
	}
}

func TestMCP_Capture(t *testing.T) {
	var gotURL string
	tools := &Tools{
		Logger: quiet,
		Capture: func(ctx context.Context, url string, target capture.Target) (*capture.Shot, error) {
			gotURL = url
			p := capturetest.NewPage(solid(40, 30, color.RGBA{9, 9, 9, 255}), 40, 30, 1)
			p.Elements["#box"] = []geom.Rectangle{geom.Rect(5, 5, 10, 8)}
			return assertion.Capture(ctx, p, quirks.Desktop{}, target, capture.WithLogger(quiet))
		},
	}
	session := mcpSession(t, tools)

	result := call(t, session, "shotdiff_capture", map[string]any{
		"url":      "http://example.test/",
		"selector": "#box",
	})
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	if gotURL != "http://example.test/" {
		t.Errorf("url = %q", gotURL)
	}
	var resp captureResponse
	if err := json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Width != 10 || resp.Height != 8 {
		t.Errorf("size = %dx%d, want 10x8", resp.Width, resp.Height)
	}
	if resp.Rect != geom.Rect(5, 5, 10, 8) {
		t.Errorf("rect = %v", resp.Rect)
	}
}

func TestMCP_CaptureUnavailable(t *testing.T) {
	session := mcpSession(t, &Tools{Logger: quiet})
	result := call(t, session, "shotdiff_capture", map[string]any{"url": "http://example.test/"})
	if err := result.GetError(); err == nil {
		t.Error("expected tool error without a capture func")
	}
}
