// internal/browser/page.go
package browser

import (
	"context"
	"time"
)

// Page is a single live browser tab. Every method is bounded by the context it
// receives and by the page's own default timeout.
type Page interface {
	// Navigate loads url and waits for DOMContentLoaded, not the load event.
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// HTML returns the full rendered markup of the document.
	HTML(ctx context.Context) (string, error)
	// VisibleText returns document.body.innerText.
	VisibleText(ctx context.Context) (string, error)
	// Evaluate runs a script in the page and decodes its result into out.
	Evaluate(ctx context.Context, script string, out interface{}) error
	// WaitVisible blocks until selector matches a visible element or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Check(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	// Screenshot captures the full page as an encoded image.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the tab. It is safe to call more than once.
	Close() error
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
