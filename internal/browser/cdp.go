// File: internal/browser/cdp.go

package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/config"
)

const (
	clickSettleDelay = 100 * time.Millisecond
	typeCharDelay    = 12 * time.Millisecond
)

// cdpDriver drives one dedicated Chrome tab over the DevTools protocol.
// Lifetime: created lazily by the manager, torn down on Stop or idle sweep.
type cdpDriver struct {
	logger *zap.Logger

	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// newCDPDriver launches a local headless Chrome (or attaches to a remote
// DevTools endpoint when one is configured) and prepares a single blank tab
// with the configured viewport and user agent.
func newCDPDriver(cfg config.BrowserConfig, logger *zap.Logger) (PageDriver, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
			chromedp.UserAgent(cfg.UserAgent),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	d := &cdpDriver{
		logger:      logger,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	initCtx, cancel := context.WithTimeout(tabCtx, cfg.NavigationTimeout)
	defer cancel()
	err := chromedp.Run(initCtx,
		chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
		emulation.SetUserAgentOverride(cfg.UserAgent),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		d.teardown()
		return nil, fmt.Errorf("initializing browser tab: %w", err)
	}
	return d, nil
}

// run executes actions on the tab, bounded by both the request context and
// the tab's own lifetime.
func (d *cdpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (d *cdpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *cdpDriver) Click(ctx context.Context, x, y float64) error {
	return d.run(ctx,
		chromedp.MouseClickXY(x, y),
		chromedp.Sleep(clickSettleDelay),
	)
}

// SendText types into whatever element currently holds focus, one character
// at a time so page-side key handlers fire in order.
func (d *cdpDriver) SendText(ctx context.Context, text string) error {
	actions := make([]chromedp.Action, 0, 2*len(text))
	for _, r := range text {
		actions = append(actions,
			chromedp.KeyEvent(string(r)),
			chromedp.Sleep(typeCharDelay),
		)
	}
	return d.run(ctx, actions...)
}

func (d *cdpDriver) PressKey(ctx context.Context, spec string) error {
	mods, key, text, err := parseKeyChord(spec)
	if err != nil {
		return err
	}

	down := input.DispatchKeyEvent(input.KeyDown).
		WithModifiers(mods).
		WithKey(key)
	if text != "" {
		down = down.WithText(text)
	}
	up := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(mods).
		WithKey(key)

	return d.run(ctx, down, up)
}

func (d *cdpDriver) teardown() {
	// Cancel the tab first so Chrome gets a clean page close before the
	// allocator tears the process down.
	if err := chromedp.Cancel(d.tabCtx); err != nil {
		d.logger.Debug("Tab cancel reported an error.", zap.Error(err))
	}
	d.cancelTab()
	d.cancelAlloc()
}

func (d *cdpDriver) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.teardown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
