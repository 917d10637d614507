// CLAUDE:SUMMARY Chrome lifecycle for capture workers: launch or connect via Rod, open-tab accounting, recycle when idle after age or heap limits.
// Package browser runs Chrome for the capture pipeline: launch (or connect to
// a remote instance) through Rod, hand out Tabs that implement
// capture.Handle, and recycle the process between test cases once it grows
// too old or too large.
//
// Recycling never interrupts a capture: the monitor only marks the browser
// due, OpenTab then waits for every open tab to close and performs the
// restart. Tab owners poll RecycleDue between cases and reopen.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how Chrome is run.
type Mode int

const (
	ModeHeadless Mode = iota // headless Chrome with stealth patches
	ModeHeadful              // headful Chrome on an Xvfb display
)

// ParseMode maps a config string to a Mode. Unknown values mean headless.
func ParseMode(s string) Mode {
	if s == "headful" {
		return ModeHeadful
	}
	return ModeHeadless
}

// Config configures the Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// Bin is the Chrome binary. Empty lets the launcher find or download one.
	Bin string

	Mode Mode

	// MemoryLimit is the JS heap size, in bytes, past which Chrome is recycled. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum Chrome lifetime. Default: 1h.
	RecycleInterval time.Duration

	// MonitorInterval is how often age and heap are checked. Default: 30s.
	MonitorInterval time.Duration

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = time.Hour
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process shared by every worker's Tab.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	open    int
	due     bool
	closed  bool
	// idle is closed when open drops to zero or the manager closes.
	idle chan struct{}
}

// NewManager creates a Manager. Call Start before opening tabs.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches or connects to Chrome and starts the monitor.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return nil
}

// Close shuts down Chrome and Xvfb. Open tabs become unusable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.wakeLocked()
	m.cleanup()
	return nil
}

// RecycleDue reports whether Chrome waits for its tabs to close so it can
// be restarted.
func (m *Manager) RecycleDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.due
}

// acquire returns the browser for a new tab. When a recycle is due it first
// waits for the other tabs to close, then restarts Chrome.
func (m *Manager) acquire(ctx context.Context) (*rod.Browser, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, fmt.Errorf("browser: manager is closed")
		}
		if m.due && m.open > 0 {
			if m.idle == nil {
				m.idle = make(chan struct{})
			}
			idle := m.idle
			m.mu.Unlock()
			m.cfg.Logger.Debug("browser: waiting for tabs to close before recycle")
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return nil, fmt.Errorf("browser: wait for recycle: %w", ctx.Err())
			}
		}
		b, err := m.acquireLocked()
		m.mu.Unlock()
		return b, err
	}
}

func (m *Manager) acquireLocked() (*rod.Browser, error) {
	if m.due {
		if err := m.recycleLocked(); err != nil {
			return nil, err
		}
	}
	if m.browser == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	m.open++
	return m.browser, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	if m.open > 0 {
		m.open--
	}
	if m.open == 0 {
		m.wakeLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) wakeLocked() {
	if m.idle != nil {
		close(m.idle)
		m.idle = nil
	}
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeHeadful && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.Mode == ModeHeadful {
			l = l.Headless(false).Env("DISPLAY=" + m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		// Stable rendering between runs.
		l = l.Set("disable-blink-features", "AutomationControlled").
			Set("hide-scrollbars").
			Set("font-render-hinting", "none").
			Set("force-color-profile", "srgb")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked() error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	m.cleanup()
	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	m.due = false
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		b, startAt, due := m.browser, m.startAt, m.due
		m.mu.Unlock()
		if b == nil || due {
			continue
		}

		reason := ""
		if time.Since(startAt) > m.cfg.RecycleInterval {
			reason = "age"
		} else if used, err := jsHeapUsage(b); err != nil {
			log.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
			log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
		}
		if reason != "" {
			m.mu.Lock()
			m.due = true
			m.mu.Unlock()
			log.Info("browser: recycle scheduled", "reason", reason)
		}
	}
}

// jsHeapUsage sums the JS heap of every open page.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
