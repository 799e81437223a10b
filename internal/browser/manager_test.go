// File: internal/browser/manager_test.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/config"
)

// fakeDriver is a deterministic in-memory PageDriver. Each instance serves a
// fixed screenshot payload so capture results are byte-stable.
type fakeDriver struct {
	mu       sync.Mutex
	shot     []byte
	navs     []string
	clicks   [][2]float64
	typed    []string
	keys     []string
	closed   bool
	navErr   error
	shotErr  error
	clickErr error
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navErr != nil {
		return f.navErr
	}
	f.navs = append(f.navs, url)
	return nil
}

func (f *fakeDriver) Screenshot(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	out := make([]byte, len(f.shot))
	copy(out, f.shot)
	return out, nil
}

func (f *fakeDriver) Click(_ context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks = append(f.clicks, [2]float64{x, y})
	return nil
}

func (f *fakeDriver) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeDriver) PressKey(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, name)
	return nil
}

func (f *fakeDriver) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type managerFixture struct {
	manager *Manager

	mu      sync.Mutex
	drivers []*fakeDriver
}

func newManagerFixture(t *testing.T, mutate func(*config.BrowserConfig)) *managerFixture {
	t.Helper()

	cfg := config.BrowserConfig{
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		NavigationTimeout: 5 * time.Second,
		OperationTimeout:  5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	fx := &managerFixture{manager: NewManager(cfg, zap.NewNop())}
	fx.manager.newDriver = func(config.BrowserConfig, *zap.Logger) (PageDriver, error) {
		d := &fakeDriver{shot: []byte("png-bytes")}
		fx.mu.Lock()
		fx.drivers = append(fx.drivers, d)
		fx.mu.Unlock()
		return d, nil
	}
	return fx
}

func (fx *managerFixture) launched() []*fakeDriver {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	out := make([]*fakeDriver, len(fx.drivers))
	copy(out, fx.drivers)
	return out
}

func TestManagerDisabled(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, func(c *config.BrowserConfig) { c.Disabled = true })
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "s1")
	require.ErrorIs(t, err, ErrDisabled)

	_, err = fx.manager.Screenshot(ctx, "s1")
	require.ErrorIs(t, err, ErrDisabled)

	_, err = fx.manager.Goto(ctx, "s1", "https://example.com")
	require.ErrorIs(t, err, ErrDisabled)

	assert.Empty(t, fx.launched(), "no browser should ever launch while disabled")
	assert.Equal(t, 0, fx.manager.Len())
}

func TestManagerStartReturnsViewportAndScreenshot(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, nil)

	vp, shot, err := fx.manager.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 1280, Height: 720}, vp)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), shot)
	require.Len(t, fx.launched(), 1)
}

func TestManagerReusesHandlePerSession(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = fx.manager.Goto(ctx, "s1", "https://example.com")
	require.NoError(t, err)
	_, err = fx.manager.Click(ctx, "s1", 10, 20)
	require.NoError(t, err)
	_, err = fx.manager.Type(ctx, "s1", "hola")
	require.NoError(t, err)
	_, err = fx.manager.Key(ctx, "s1", "Enter")
	require.NoError(t, err)

	drivers := fx.launched()
	require.Len(t, drivers, 1, "all operations on one session share one browser")
	d := drivers[0]
	assert.Equal(t, []string{"https://example.com"}, d.navs)
	assert.Equal(t, [][2]float64{{10, 20}}, d.clicks)
	assert.Equal(t, []string{"hola"}, d.typed)
	assert.Equal(t, []string{"Enter"}, d.keys)

	// Distinct sessions get distinct browsers.
	_, _, err = fx.manager.Start(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, fx.launched(), 2)
	assert.Equal(t, 2, fx.manager.Len())
}

func TestManagerScreenshotIsDeterministic(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	first, err := fx.manager.Screenshot(ctx, "s1")
	require.NoError(t, err)
	second, err := fx.manager.Screenshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "unchanged page must produce identical captures")
}

func TestManagerStopThenScreenshotRecreates(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = fx.manager.Goto(ctx, "s1", "https://example.com")
	require.NoError(t, err)

	fx.manager.Stop(ctx, "s1")
	drivers := fx.launched()
	require.Len(t, drivers, 1)
	assert.True(t, drivers[0].closed, "stop must close the browser")
	assert.Equal(t, 0, fx.manager.Len())

	// Stop on a session with no browser is a no-op.
	fx.manager.Stop(ctx, "s1")

	shot, err := fx.manager.Screenshot(ctx, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
	assert.Len(t, fx.launched(), 2, "screenshot after stop creates a fresh browser")
}

func TestManagerStopRacingScreenshotNeverLeaks(t *testing.T) {
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "s1")
	require.NoError(t, err)

	// Freeze the handle as an in-flight operation would and park a
	// screenshot behind it.
	fx.manager.mu.Lock()
	h := fx.manager.handles["s1"]
	fx.manager.mu.Unlock()
	h.mu.Lock()

	shotDone := make(chan error, 1)
	go func() {
		_, err := fx.manager.Screenshot(ctx, "s1")
		shotDone <- err
	}()
	time.Sleep(50 * time.Millisecond)

	// A stop wins the race: the entry leaves the map and the browser is
	// closed before the waiter obtains the handle lock.
	fx.manager.mu.Lock()
	delete(fx.manager.handles, "s1")
	fx.manager.mu.Unlock()
	require.NoError(t, h.driver.Close(ctx))
	h.driver = nil
	h.mu.Unlock()

	require.NoError(t, <-shotDone)

	// The waiter must have restarted from the map, not revived the evicted
	// handle: shutdown has to reach every browser that was launched.
	fx.manager.Shutdown(ctx)
	assert.Equal(t, 0, fx.manager.Len())
	for i, d := range fx.launched() {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		assert.True(t, closed, "browser %d left open after shutdown", i)
	}
}

func TestManagerOperationErrorKeepsHandle(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "s1")
	require.NoError(t, err)

	d := fx.launched()[0]
	d.mu.Lock()
	d.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	d.mu.Unlock()

	_, err = fx.manager.Goto(ctx, "s1", "https://bad.invalid")
	require.Error(t, err)

	d.mu.Lock()
	d.navErr = nil
	d.mu.Unlock()

	_, err = fx.manager.Goto(ctx, "s1", "https://example.com")
	require.NoError(t, err)
	assert.Len(t, fx.launched(), 1, "a failed operation must not discard the browser")
}

func TestManagerLaunchFailureDoesNotCacheHandle(t *testing.T) {
	t.Parallel()
	fx := newManagerFixture(t, nil)
	launchErr := errors.New("chrome not found")
	fx.manager.newDriver = func(config.BrowserConfig, *zap.Logger) (PageDriver, error) {
		return nil, launchErr
	}

	_, _, err := fx.manager.Start(context.Background(), "s1")
	require.ErrorIs(t, err, launchErr)
	assert.Equal(t, 0, fx.manager.Len(), "failed launches must not leave a dead handle behind")
}

func TestManagerSweepClosesIdleHandles(t *testing.T) {
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "idle")
	require.NoError(t, err)
	_, _, err = fx.manager.Start(ctx, "fresh")
	require.NoError(t, err)

	fx.manager.mu.Lock()
	fx.manager.handles["idle"].lastActive = time.Now().Add(-time.Hour)
	fx.manager.mu.Unlock()

	evicted := fx.manager.Sweep(30 * time.Minute)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, fx.manager.Len())

	drivers := fx.launched()
	assert.True(t, drivers[0].closed, "swept session's browser must be closed")
	assert.False(t, drivers[1].closed)
}

func TestManagerShutdownClosesEverything(t *testing.T) {
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, _, err := fx.manager.Start(ctx, "a")
	require.NoError(t, err)
	_, _, err = fx.manager.Start(ctx, "b")
	require.NoError(t, err)

	fx.manager.Shutdown(ctx)
	assert.Equal(t, 0, fx.manager.Len())
	for _, d := range fx.launched() {
		assert.True(t, d.closed)
	}
}
