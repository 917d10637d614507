// CLAUDE:SUMMARY CLI entry point for shotdiff: run configured visual cases on a Chrome worker pool, compare two PNGs, or serve MCP tools over stdio.
// Command shotdiff captures pages and compares them against stored baselines.
//
// Usage:
//
//	shotdiff -config shotdiff.yaml                    # run cases (exec_mode from config)
//	shotdiff -config shotdiff.yaml -mode SET_EXPECTED # record baselines
//	shotdiff -compare expected.png actual.png -out diff.png
//	shotdiff -mcp -config shotdiff.yaml               # MCP tools on stdio
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/shotdiff/assertion"
	"github.com/hazyhaar/shotdiff/browser"
	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/config"
	"github.com/hazyhaar/shotdiff/diffimage"
	"github.com/hazyhaar/shotdiff/horosafe"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/mcptools"
	"github.com/hazyhaar/shotdiff/observability"
	"github.com/hazyhaar/shotdiff/persist"
	"github.com/hazyhaar/shotdiff/quirks"
	"github.com/hazyhaar/shotdiff/runner"
	shotsignal "github.com/hazyhaar/shotdiff/signal"
)

// errFailed makes the process exit 1 without a fatal log line.
var errFailed = errors.New("visual differences found")

func main() {
	configPath := flag.String("config", "shotdiff.yaml", "path to the run configuration")
	mode := flag.String("mode", "", "override exec_mode: TAKE_SCREENSHOT, SET_EXPECTED, RUN_TEST")
	compare := flag.Bool("compare", false, "compare the two PNG files given as arguments and exit")
	out := flag.String("out", "diff.png", "with -compare: where to write the diff image")
	kind := flag.String("comparator", "", "with -compare: strict, ignore_clear_pixels or tolerance")
	tolerance := flag.Int("tolerance", 0, "with -compare: max channel delta for the tolerance comparator")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *compare:
		if flag.NArg() != 2 {
			fmt.Fprintln(os.Stderr, "usage: shotdiff -compare expected.png actual.png [-out diff.png]")
			os.Exit(2)
		}
		err = compareFiles(flag.Arg(0), flag.Arg(1), *out, imgdiff.Options{Kind: imgdiff.Kind(*kind), Tolerance: *tolerance})
	case *serveMCP:
		err = runMCP(ctx, logger, *configPath)
	default:
		err = run(ctx, logger, *configPath, *mode)
	}
	if errors.Is(err, errFailed) {
		os.Exit(1)
	}
	if err != nil {
		logger.Error("shotdiff: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, mode string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.ExecMode = mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	store, err := openPersister(cfg.Persister)
	if err != nil {
		return err
	}
	defer store.Close()

	q, _ := quirks.ForCapabilities(cfg.Capabilities)
	cmp, _ := imgdiff.New(cfg.Comparator)

	r, err := assertion.NewRun(ctx, store, cfg.Mode(), assertion.WithRunLogger(logger))
	if err != nil {
		return err
	}

	mgr, err := startBrowser(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.Close()

	pool := &runner.Pool{
		Run:           r,
		Open:          opener(mgr, cfg),
		Workers:       cfg.Workers,
		Quirks:        q,
		Capabilities:  cfg.Capabilities,
		Comparator:    cmp,
		CaptureOpts:   captureOptions(cfg, logger),
		SignalTimeout: cfg.Signal.Timeout,
		Logger:        logger,
	}
	if cfg.Signal.Addr != "" {
		hub := shotsignal.NewHub(logger)
		go func() {
			if err := hub.Serve(ctx, cfg.Signal.Addr); err != nil {
				logger.Error("shotdiff: signal listener", "error", err)
			}
		}()
		pool.Signal = hub
	}

	if cfg.Metrics.Path != "" {
		m, err := observability.Open(cfg.Metrics.Path,
			observability.WithFlushInterval(cfg.Metrics.FlushInterval), observability.WithLogger(logger))
		if err != nil {
			return err
		}
		defer m.Close()
		pool.Metrics = m
	}

	outcomes, err := pool.Execute(ctx, cases(cfg))
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Passed() {
			failed++
		}
	}
	logger.Info("shotdiff: run finished",
		"run_id", r.ID, "mode", string(r.Mode), "cases", len(outcomes), "failed", failed)
	if failed > 0 {
		return errFailed
	}
	return nil
}

func openPersister(pc config.PersisterConfig) (persist.Persister, error) {
	if pc.Type == "sqlite" {
		db, err := persist.OpenSQLite(pc.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	files, err := persist.NewFiles(pc.Dir)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func startBrowser(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*browser.Manager, error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Bin:             cfg.Browser.Bin,
		Mode:            browser.ParseMode(cfg.Browser.Mode),
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		Logger:          logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

func tabOptions(cfg *config.Config) browser.TabOptions {
	return browser.TabOptions{
		Viewport: browser.Viewport{
			Width:  cfg.Viewport.Width,
			Height: cfg.Viewport.Height,
			Scale:  cfg.Viewport.Scale,
			Mobile: cfg.Viewport.Mobile,
		},
		Block:      cfg.Browser.Block,
		Stealth:    cfg.Browser.Stealth,
		Freeze:     *cfg.Browser.Freeze,
		NavTimeout: cfg.Browser.NavTimeout,
	}
}

var _ runner.Recycler = (*browser.Tab)(nil)

func opener(mgr *browser.Manager, cfg *config.Config) runner.OpenFunc {
	opts := tabOptions(cfg)
	return func(ctx context.Context, _ int) (runner.Page, error) {
		tab, err := browser.OpenTab(ctx, mgr, opts)
		if err != nil {
			return nil, err
		}
		return tab, nil
	}
}

func captureOptions(cfg *config.Config, logger *slog.Logger) []capture.Option {
	return []capture.Option{
		capture.WithLogger(logger),
		capture.WithSettle(cfg.Capture.Settle),
		capture.WithPoll(cfg.Capture.PollInterval, cfg.Capture.PollTimeout),
	}
}

func cases(cfg *config.Config) []runner.Case {
	out := make([]runner.Case, 0, len(cfg.Cases))
	for _, c := range cfg.Cases {
		rc := runner.Case{Class: c.Class, Method: c.Method, URL: c.URL}
		for _, s := range c.Screenshots {
			rc.Screenshots = append(rc.Screenshots, runner.Screenshot{
				ID:         s.ID,
				WaitSignal: s.WaitSignal,
				Targets:    s.Targets,
			})
		}
		out = append(out, rc)
	}
	return out
}

func runMCP(ctx context.Context, logger *slog.Logger, configPath string) error {
	tools := &mcptools.Tools{Logger: logger}

	// Without a readable config the pure image tools still work.
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		logger.Warn("shotdiff: mcp without config", "error", err)
	} else {
		store, err := openPersister(cfg.Persister)
		if err != nil {
			return err
		}
		defer store.Close()
		tools.Persister = store

		mgr, err := startBrowser(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer mgr.Close()
		tools.Capture = browserCapture(mgr, cfg, logger)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "shotdiff", Version: "1.0.0"}, nil)
	tools.Register(srv)
	logger.Info("shotdiff: MCP on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func browserCapture(mgr *browser.Manager, cfg *config.Config, logger *slog.Logger) mcptools.CaptureFunc {
	q, _ := quirks.ForCapabilities(cfg.Capabilities)
	opts := tabOptions(cfg)
	copts := captureOptions(cfg, logger)
	return func(ctx context.Context, url string, t capture.Target) (*capture.Shot, error) {
		tab, err := browser.OpenTab(ctx, mgr, opts)
		if err != nil {
			return nil, err
		}
		defer tab.Close()
		if err := tab.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return assertion.Capture(ctx, tab, q, t, copts...)
	}
}

func compareFiles(expectedPath, actualPath, outPath string, opts imgdiff.Options) error {
	cmp, err := imgdiff.New(opts)
	if err != nil {
		return err
	}
	expected, err := readPNG(expectedPath)
	if err != nil {
		return err
	}
	actual, err := readPNG(actualPath)
	if err != nil {
		return err
	}

	d, err := assertion.Compare(assertion.ShotOf(actual, nil), assertion.ShotOf(expected, nil), cmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"succeeded":    d.Succeeded(),
		"contentCount": len(d.Content()),
		"sizeCount":    len(d.Size()),
		"areas":        diffimage.Areas(d),
	}); err != nil {
		return err
	}
	if d.Succeeded() {
		return nil
	}
	if err := writePNG(outPath, assertion.RenderDiff(actual, expected, d)); err != nil {
		return err
	}
	return errFailed
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := horosafe.LimitedReadAll(f, horosafe.MaxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
