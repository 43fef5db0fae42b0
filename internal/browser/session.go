// Package browser owns the single long-lived browsing session shared by all
// agent invocations. The session is an explicitly owned object passed by
// handle into orchestrators; access to the live browser is mutex-guarded.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tab describes the public metadata for a tracked page.
type Tab struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type tabRecord struct {
	meta Tab
	page *rod.Page
}

// Config holds browser configuration.
type Config struct {
	Headless            bool
	Bin                 string
	ViewportWidth       int
	ViewportHeight      int
	NavigationTimeoutMs int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            false,
		ViewportWidth:       1280,
		ViewportHeight:      1024,
		NavigationTimeoutMs: 30000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Session owns the Chrome instance and the tabs opened on it. One Session is
// shared across all checkout/confirm workflows of a deployment; callers
// serialize actual page driving through the agent runner.
type Session struct {
	cfg        Config
	log        *zap.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	tabs       map[string]*tabRecord
	current    string // tab id of the most recently used page
	controlURL string
}

// NewSession creates a session manager. The browser is not launched until
// Start is called.
func NewSession(cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:  cfg,
		log:  log.Named("browser"),
		tabs: make(map[string]*tabRecord),
	}
}

// Start launches Chrome (or verifies an existing connection is still alive)
// and connects to it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil // browser is healthy
		}
		s.log.Warn("stale browser connection detected, reconnecting")
		_ = s.browser.Close()
		s.browser = nil
		s.controlURL = ""
		s.tabs = make(map[string]*tabRecord)
		s.current = ""
	}

	launch := launcher.New().Headless(s.cfg.Headless)
	if s.cfg.Bin != "" {
		launch = launch.Bin(s.cfg.Bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	s.browser = browser
	s.controlURL = controlURL
	s.log.Info("browser session started", zap.Bool("headless", s.cfg.Headless))
	return nil
}

func (s *Session) ensureStarted(ctx context.Context) error {
	s.mu.RLock()
	if s.browser != nil {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()
	return s.Start(ctx)
}

// IsConnected reports whether the browser is running.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browser != nil
}

// CreateTab opens a new page at the given URL, tracks it, and makes it the
// current page.
func (s *Session) CreateTab(ctx context.Context, url string) (*rod.Page, error) {
	if err := s.ensureStarted(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		s.log.Warn("failed to set viewport", zap.Error(err))
	}

	if err := page.Timeout(s.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		s.log.Warn("page load wait failed", zap.String("url", url), zap.Error(err))
	}

	meta := Tab{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	s.tabs[meta.ID] = &tabRecord{meta: meta, page: page}
	s.current = meta.ID

	s.log.Debug("tab created", zap.String("tab", meta.ID), zap.String("url", url))
	return page, nil
}

// CurrentPage returns the most recently used page, or nil when no tab is
// open. Checkout steps after cart navigation run against whatever page the
// store left the session on.
func (s *Session) CurrentPage() *rod.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tabs[s.current]
	if !ok {
		return nil
	}
	rec.meta.LastActive = time.Now()
	return rec.page
}

// Tabs returns metadata for all tracked tabs.
func (s *Session) Tabs() []Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tab, 0, len(s.tabs))
	for _, rec := range s.tabs {
		out = append(out, rec.meta)
	}
	return out
}

// Stop closes tracked pages and the browser.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.tabs {
		if rec.page != nil {
			_ = rec.page.Close()
		}
		delete(s.tabs, id)
	}
	s.current = ""

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	s.controlURL = ""
	s.log.Info("browser session stopped")
	return err
}
