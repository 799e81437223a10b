// File: internal/browser/manager.go

// Package browser owns the lifecycle of at most one headless browser handle
// per session id: lazy creation (local launch or remote attach), navigation,
// input injection, screenshot capture and teardown. Every operation against
// one session serializes on that session's handle lock, and failures surface
// as errors the HTTP layer degrades into soft ok:false results.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/config"
)

// ErrDisabled is returned by every operation when browser control is
// administratively turned off. Callers surface it with an actionable hint
// rather than a hard failure.
var ErrDisabled = errors.New("browser control is disabled by configuration")

// Viewport is the fixed page size applied to every session.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// handle is the cached browser state for one session id. Its mutex
// serializes all operations against the session's page; the page is
// exclusively owned and never shared across sessions.
type handle struct {
	mu         sync.Mutex
	driver     PageDriver
	lastShot   []byte
	lastURL    string
	lastActive time.Time
}

type driverFactory func(cfg config.BrowserConfig, logger *zap.Logger) (PageDriver, error)

// Manager caches at most one live browser handle per session id.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// newDriver is swappable so tests run without a real browser.
	newDriver driverFactory

	mu      sync.Mutex
	handles map[string]*handle
}

// NewManager creates the manager. Browser processes are launched lazily on
// the first operation of each session.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("browser_manager"),
		newDriver: newCDPDriver,
		handles:   make(map[string]*handle),
	}
}

// Viewport returns the configured page size.
func (m *Manager) Viewport() Viewport {
	return Viewport{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight}
}

// acquire returns the session's handle with its lock held, creating the
// underlying browser if needed, plus the release function.
func (m *Manager) acquire(id string) (*handle, func(), error) {
	if m.cfg.Disabled {
		return nil, nil, ErrDisabled
	}

	var h *handle
	for {
		m.mu.Lock()
		var ok bool
		h, ok = m.handles[id]
		if !ok {
			h = &handle{}
			m.handles[id] = h
		}
		m.mu.Unlock()

		h.mu.Lock()
		// Stop or the sweeper may have evicted the handle while we waited
		// for its lock; launching a browser on an orphaned handle would
		// leave it untracked, so retry from the map.
		m.mu.Lock()
		current := m.handles[id] == h
		m.mu.Unlock()
		if current {
			break
		}
		h.mu.Unlock()
	}

	if h.driver == nil {
		driver, err := m.newDriver(m.cfg, m.logger.With(zap.String("session_id", id)))
		if err != nil {
			h.mu.Unlock()
			m.evict(id, h)
			return nil, nil, fmt.Errorf("starting browser session: %w", err)
		}
		h.driver = driver
		m.logger.Info("Browser session created.",
			zap.String("session_id", id), zap.Bool("remote", m.cfg.RemoteURL != ""))
	}
	h.lastActive = time.Now()
	return h, h.mu.Unlock, nil
}

// evict removes the handle from the cache if it is still the cached entry.
func (m *Manager) evict(id string, h *handle) {
	m.mu.Lock()
	if cur, ok := m.handles[id]; ok && cur == h {
		delete(m.handles, id)
	}
	m.mu.Unlock()
}

// capture refreshes and caches the session's screenshot. Callers hold the
// handle lock.
func (m *Manager) capture(ctx context.Context, h *handle) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	shot, err := h.driver.Screenshot(opCtx)
	if err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}
	h.lastShot = shot
	return base64.StdEncoding.EncodeToString(shot), nil
}

// Start ensures the session has a live browser and returns the viewport with
// a first screenshot.
func (m *Manager) Start(ctx context.Context, id string) (Viewport, string, error) {
	h, release, err := m.acquire(id)
	if err != nil {
		return Viewport{}, "", err
	}
	defer release()

	shot, err := m.capture(ctx, h)
	if err != nil {
		return Viewport{}, "", err
	}
	return m.Viewport(), shot, nil
}

// Screenshot recaptures the session's current page. A session whose browser
// was stopped is transparently re-created.
func (m *Manager) Screenshot(ctx context.Context, id string) (string, error) {
	h, release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()
	return m.capture(ctx, h)
}

// Goto navigates the session's page and returns a fresh screenshot.
func (m *Manager) Goto(ctx context.Context, id, url string) (string, error) {
	h, release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()
	if err := h.driver.Navigate(navCtx, url); err != nil {
		return "", fmt.Errorf("navigating to %s: %w", url, err)
	}
	h.lastURL = url

	return m.capture(ctx, h)
}

// Click dispatches a pointer click at viewport coordinates and returns a
// fresh screenshot.
func (m *Manager) Click(ctx context.Context, id string, x, y float64) (string, error) {
	h, release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()
	if err := h.driver.Click(opCtx, x, y); err != nil {
		return "", fmt.Errorf("clicking at (%.0f, %.0f): %w", x, y, err)
	}

	return m.capture(ctx, h)
}

// Type sends keystrokes to the focused element and returns a fresh
// screenshot.
func (m *Manager) Type(ctx context.Context, id, text string) (string, error) {
	h, release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()
	if err := h.driver.SendText(opCtx, text); err != nil {
		return "", fmt.Errorf("typing text: %w", err)
	}

	return m.capture(ctx, h)
}

// Key dispatches a single named key press (or chord) and returns a fresh
// screenshot.
func (m *Manager) Key(ctx context.Context, id, name string) (string, error) {
	h, release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()
	if err := h.driver.PressKey(opCtx, name); err != nil {
		return "", fmt.Errorf("pressing key %q: %w", name, err)
	}

	return m.capture(ctx, h)
}

// Stop closes the session's browser and evicts the cache entry. Close
// failures are swallowed; a later operation simply creates a fresh session.
func (m *Manager) Stop(ctx context.Context, id string) {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.driver == nil {
		return
	}
	if err := h.driver.Close(ctx); err != nil {
		m.logger.Debug("Browser close reported an error.", zap.String("session_id", id), zap.Error(err))
	}
	h.driver = nil
	m.logger.Info("Browser session stopped.", zap.String("session_id", id))
}

// Len reports the number of cached handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Sweep closes handles that have been idle longer than ttl. Busy handles
// (lock held) are skipped.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	stale := make(map[string]*handle)
	for id, h := range m.handles {
		if !h.mu.TryLock() {
			continue
		}
		if h.lastActive.Before(cutoff) {
			stale[id] = h
			delete(m.handles, id)
		} else {
			h.mu.Unlock()
		}
	}
	m.mu.Unlock()

	for id, h := range stale {
		if h.driver != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := h.driver.Close(closeCtx); err != nil {
				m.logger.Debug("Idle browser close reported an error.", zap.String("session_id", id), zap.Error(err))
			}
			cancel()
			h.driver = nil
		}
		h.mu.Unlock()
	}
	if len(stale) > 0 {
		m.logger.Info("Swept idle browser sessions.", zap.Int("evicted", len(stale)), zap.Duration("ttl", ttl))
	}
	return len(stale)
}

// RunSweeper periodically closes idle browser handles until the context is
// done.
func (m *Manager) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ttl)
		}
	}
}

// Shutdown closes every live handle. Used on process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(ctx, id)
	}
}
