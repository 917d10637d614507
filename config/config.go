// CLAUDE:SUMMARY Defines the shotdiff run configuration (browser, viewport, capabilities, comparator, persister, cases) and parses YAML with defaults.
// Package config loads the YAML file describing a shotdiff run.
//
// Example:
//
//	exec_mode: RUN_TEST
//	workers: 4
//	browser:
//	  mode: headless
//	  block: [media]
//	viewport: {width: 1280, height: 800, scale: 1}
//	capabilities: {browser: chrome, platform: linux}
//	comparator: {kind: tolerance, tolerance: 2}
//	persister: {type: sqlite, path: results/shotdiff.db}
//	metrics: {path: results/metrics.db}
//	cases:
//	  - class: LoginTest
//	    method: testForm
//	    url: http://localhost:8080/login
//	    screenshots:
//	      - id: top
//	        targets:
//	          - selector: {query: "#form"}
//	            excludes: [{query: ".clock"}]
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/shotdiff/assertion"
	"github.com/hazyhaar/shotdiff/capture"
	"github.com/hazyhaar/shotdiff/horosafe"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/quirks"
)

// Config is the top-level run configuration.
type Config struct {
	ExecMode     string              `yaml:"exec_mode"`
	Workers      int                 `yaml:"workers"`
	Browser      BrowserConfig       `yaml:"browser"`
	Viewport     ViewportConfig      `yaml:"viewport"`
	Capabilities quirks.Capabilities `yaml:"capabilities"`
	Comparator   imgdiff.Options     `yaml:"comparator"`
	Persister    PersisterConfig     `yaml:"persister"`
	Capture      CaptureConfig       `yaml:"capture"`
	Signal       SignalConfig        `yaml:"signal"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	Cases        []CaseConfig        `yaml:"cases"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Bin             string        `yaml:"bin"`
	Mode            string        `yaml:"mode"` // headless | headful
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	XvfbDisplay     string        `yaml:"xvfb_display"`
	Stealth         bool          `yaml:"stealth"`
	Freeze          *bool         `yaml:"freeze_animations"`
	Block           []string      `yaml:"block"`
	NavTimeout      time.Duration `yaml:"nav_timeout"`
}

// ViewportConfig is the emulated window of every tab.
type ViewportConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Scale  float64 `yaml:"scale"`
	Mobile bool    `yaml:"mobile"`
}

// PersisterConfig selects where results go.
type PersisterConfig struct {
	Type string `yaml:"type"` // files | sqlite
	Dir  string `yaml:"dir"`
	Path string `yaml:"path"`
}

// CaptureConfig tunes the scroll loop and the bounded waits.
type CaptureConfig struct {
	Settle       time.Duration `yaml:"settle"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// SignalConfig configures the /takeScreenshot listener.
type SignalConfig struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig enables the run metrics database. Empty Path disables it.
type MetricsConfig struct {
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// CaseConfig is one test method: a page and the screenshots taken on it.
type CaseConfig struct {
	Class       string             `yaml:"class"`
	Method      string             `yaml:"method"`
	URL         string             `yaml:"url"`
	Screenshots []ScreenshotConfig `yaml:"screenshots"`
}

// ScreenshotConfig is one AssertView call. With WaitSignal set, the case
// waits for GET /takeScreenshot?id=<ID> before capturing.
type ScreenshotConfig struct {
	ID         string           `yaml:"id"`
	WaitSignal bool             `yaml:"wait_signal"`
	Targets    []capture.Target `yaml:"targets"`
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ExecMode == "" {
		c.ExecMode = string(assertion.RunTest)
	}
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Freeze == nil {
		on := true
		c.Browser.Freeze = &on
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = 1280
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = 800
	}
	if c.Viewport.Scale <= 0 {
		c.Viewport.Scale = 1
	}
	if c.Persister.Type == "" {
		c.Persister.Type = "files"
	}
	if c.Persister.Dir == "" {
		c.Persister.Dir = "results"
	}
	if c.Persister.Path == "" {
		c.Persister.Path = filepath.Join(c.Persister.Dir, "shotdiff.db")
	}
	if c.Capture.Settle <= 0 {
		c.Capture.Settle = 100 * time.Millisecond
	}
	if c.Capture.PollInterval <= 0 {
		c.Capture.PollInterval = 100 * time.Millisecond
	}
	if c.Capture.PollTimeout <= 0 {
		c.Capture.PollTimeout = 30 * time.Second
	}
	if c.Signal.Timeout <= 0 {
		c.Signal.Timeout = 5 * time.Minute
	}
	if c.Metrics.FlushInterval <= 0 {
		c.Metrics.FlushInterval = 5 * time.Second
	}
	for i := range c.Cases {
		for j := range c.Cases[i].Screenshots {
			if len(c.Cases[i].Screenshots[j].Targets) == 0 {
				c.Cases[i].Screenshots[j].Targets = []capture.Target{capture.Page()}
			}
		}
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := assertion.ParseExecMode(c.ExecMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := imgdiff.New(c.Comparator); err != nil {
		return fmt.Errorf("config: comparator: %w", err)
	}
	if _, err := quirks.ForCapabilities(c.Capabilities); err != nil {
		return fmt.Errorf("config: capabilities: %w", err)
	}
	switch c.Persister.Type {
	case "files", "sqlite":
	default:
		return fmt.Errorf("config: unknown persister %q", c.Persister.Type)
	}
	if c.Browser.Mode != "headless" && c.Browser.Mode != "headful" {
		return fmt.Errorf("config: unknown browser mode %q", c.Browser.Mode)
	}
	for i, cs := range c.Cases {
		for _, id := range []string{cs.Class, cs.Method} {
			if err := horosafe.ValidateIdentifier(id); err != nil {
				return fmt.Errorf("config: case %d: %w", i, err)
			}
		}
		if cs.URL == "" {
			return fmt.Errorf("config: case %d (%s#%s): url required", i, cs.Class, cs.Method)
		}
		for _, s := range cs.Screenshots {
			if err := horosafe.ValidateIdentifier(s.ID); err != nil {
				return fmt.Errorf("config: case %s#%s: screenshot: %w", cs.Class, cs.Method, err)
			}
			for _, t := range s.Targets {
				if err := t.Validate(); err != nil {
					return fmt.Errorf("config: case %s#%s/%s: %w", cs.Class, cs.Method, s.ID, err)
				}
			}
		}
	}
	return nil
}

// Mode returns the parsed exec mode. Valid after Parse.
func (c *Config) Mode() assertion.ExecMode {
	m, _ := assertion.ParseExecMode(c.ExecMode)
	return m
}
