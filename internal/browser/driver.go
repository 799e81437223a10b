// File: internal/browser/driver.go
package browser

import "context"

// PageDriver is the low-level surface of one browser page. The production
// implementation speaks the Chrome DevTools protocol; tests substitute a
// deterministic fake through the Manager's driver factory.
type PageDriver interface {
	// Navigate loads the URL and waits for the DOM to be ready.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Click dispatches a pointer click at viewport coordinates.
	Click(ctx context.Context, x, y float64) error
	// SendText types the text into the focused element, key by key.
	SendText(ctx context.Context, text string) error
	// PressKey dispatches a single named key press or a modifier chord
	// such as "Control+L".
	PressKey(ctx context.Context, name string) error
	// Close tears the page and its browser down. Best-effort.
	Close(ctx context.Context) error
}
