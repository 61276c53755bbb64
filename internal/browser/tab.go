// internal/browser/tab.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// Tab is the chromedp implementation of Page.
type Tab struct {
	ctx               context.Context
	cancel            context.CancelFunc
	defaultTimeout    time.Duration
	screenshotQuality int
	logger            *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ Page = (*Tab)(nil)

func newTab(ctx context.Context, cancel context.CancelFunc, defaultTimeout time.Duration, quality int, logger *zap.Logger) *Tab {
	if quality <= 0 || quality > 100 {
		quality = 100
	}
	return &Tab{
		ctx:               ctx,
		cancel:            cancel,
		defaultTimeout:    defaultTimeout,
		screenshotQuality: quality,
		logger:            logger.Named("tab"),
	}
}

func (t *Tab) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// run executes actions bound to both the tab lifetime and ctx. Without a
// deadline on ctx the page default timeout applies.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	if t.isClosed() {
		return schemas.ErrPageClosed
	}
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()

	if _, ok := ctx.Deadline(); !ok && t.defaultTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, t.defaultTimeout)
		defer timeoutCancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func queryOptions(loc Locator) []chromedp.QueryOption {
	if loc.XPath {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

// Navigate loads url and returns once the document has been parsed
// (DOMContentLoaded). Subresources such as images and iframes may still be
// loading.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	t.logger.Debug("Navigating.", zap.String("url", url))
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		parsed := make(chan struct{}, 1)
		chromedp.ListenTarget(listenCtx, func(ev interface{}) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				select {
				case parsed <- struct{}{}:
				default:
				}
			}
		})

		_, loaderID, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		// Same-document navigations have no loader and fire no event.
		if loaderID == "" {
			return nil
		}
		select {
		case <-parsed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation timed out: %w", err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (t *Tab) Title(ctx context.Context) (string, error) {
	var title string
	err := t.run(ctx, chromedp.Title(&title))
	return title, err
}

func (t *Tab) URL(ctx context.Context) (string, error) {
	var loc string
	err := t.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	err := t.run(ctx, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html))
	return html, err
}

func (t *Tab) VisibleText(ctx context.Context) (string, error) {
	var text string
	err := t.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

func (t *Tab) Evaluate(ctx context.Context, script string, out interface{}) error {
	return t.run(ctx, chromedp.Evaluate(script, out))
}

func (t *Tab) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	loc, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.run(waitCtx, chromedp.WaitVisible(loc.Query, queryOptions(loc)...))
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	loc, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	return t.run(ctx, chromedp.Click(loc.Query, opts...))
}

func (t *Tab) Fill(ctx context.Context, selector, value string) error {
	loc, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	opts := queryOptions(loc)
	return t.run(ctx,
		chromedp.WaitVisible(loc.Query, opts...),
		chromedp.Focus(loc.Query, opts...),
		chromedp.SetValue(loc.Query, "", opts...),
		chromedp.SendKeys(loc.Query, value, opts...),
	)
}

// Check ticks a checkbox or radio. Already checked inputs are left alone.
func (t *Tab) Check(ctx context.Context, selector string) error {
	loc, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	opts := queryOptions(loc)

	var checked bool
	if err := t.run(ctx, chromedp.JavascriptAttribute(loc.Query, "checked", &checked, opts...)); err != nil {
		return fmt.Errorf("failed to read checked state: %w", err)
	}
	if checked {
		return nil
	}
	return t.run(ctx, chromedp.Click(loc.Query, append(opts, chromedp.NodeVisible)...))
}

// selectScript sets a control's value and fires input and change so page
// listeners see the selection.
const selectScript = `(function(sel, isXPath, value) {
	const el = isXPath
		? document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
		: document.querySelector(sel);
	if (!el) return false;
	el.value = value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %t, %s)`

func (t *Tab) SelectOption(ctx context.Context, selector, value string) error {
	loc, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	query, err := json.Marshal(loc.Query)
	if err != nil {
		return err
	}
	val, err := json.Marshal(value)
	if err != nil {
		return err
	}

	var found bool
	err = t.run(ctx,
		chromedp.WaitReady(loc.Query, queryOptions(loc)...),
		chromedp.Evaluate(fmt.Sprintf(selectScript, query, loc.XPath, val), &found),
	)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// Screenshot captures the full page. Quality 100 yields PNG, anything lower
// a JPEG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, chromedp.FullScreenshot(&buf, t.screenshotQuality))
	return buf, err
}

// Close cancels the tab context, which closes the target and disposes its
// browser context.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
