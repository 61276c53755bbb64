// Package browsertest provides an in-memory browser.Page for unit tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// FakePage is a scriptable page. Elements are addressed by the exact selector
// strings the code under test uses.
type FakePage struct {
	mu sync.Mutex

	title      string
	html       string
	text       string
	url        string
	visible    map[string]bool
	present    map[string]bool
	checked    map[string]bool
	values     map[string]string
	onClick    map[string]func(*FakePage)
	onNavigate func(*FakePage)
	evalFunc   func(script string, out interface{}) error

	NavigateErr    error
	ScreenshotErr  error
	ScreenshotData []byte

	calls  []string
	closed bool
}

// New returns an empty page.
func New() *FakePage {
	return &FakePage{
		visible:        map[string]bool{},
		present:        map[string]bool{},
		checked:        map[string]bool{},
		values:         map[string]string{},
		onClick:        map[string]func(*FakePage){},
		ScreenshotData: []byte("\x89PNG-fake"),
	}
}

// -- Setup helpers --

func (p *FakePage) WithTitle(title string) *FakePage { p.SetTitle(title); return p }
func (p *FakePage) WithHTML(html string) *FakePage   { p.SetHTML(html); return p }
func (p *FakePage) WithText(text string) *FakePage   { p.SetText(text); return p }

// WithVisible marks selectors as present and visible.
func (p *FakePage) WithVisible(selectors ...string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.visible[s] = true
		p.present[s] = true
	}
	return p
}

// WithPresent marks selectors as present but not necessarily visible.
func (p *FakePage) WithPresent(selectors ...string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.present[s] = true
	}
	return p
}

// OnClick registers a hook that runs after selector is clicked.
func (p *FakePage) OnClick(selector string, fn func(*FakePage)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
	return p
}

// OnNavigate registers a hook that runs after every successful navigation.
func (p *FakePage) OnNavigate(fn func(*FakePage)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
	return p
}

// OnEvaluate installs the handler for Evaluate calls.
func (p *FakePage) OnEvaluate(fn func(script string, out interface{}) error) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalFunc = fn
	return p
}

func (p *FakePage) SetTitle(title string) { p.mu.Lock(); p.title = title; p.mu.Unlock() }
func (p *FakePage) SetHTML(html string)   { p.mu.Lock(); p.html = html; p.mu.Unlock() }
func (p *FakePage) SetText(text string)   { p.mu.Lock(); p.text = text; p.mu.Unlock() }

// -- Inspection helpers --

// Calls returns the ordered log of page operations.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Mutations counts operations that change page state (click, fill, check, select).
func (p *FakePage) Mutations() int {
	n := 0
	for _, c := range p.Calls() {
		switch {
		case hasPrefix(c, "click:"), hasPrefix(c, "fill:"), hasPrefix(c, "check:"), hasPrefix(c, "select:"):
			n++
		}
	}
	return n
}

func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) IsChecked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked[selector]
}

func (p *FakePage) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// -- browser.Page implementation --

func (p *FakePage) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return schemas.ErrPageClosed
	}
	p.calls = append(p.calls, call)
	return nil
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record("navigate:" + url); err != nil {
		return err
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.mu.Lock()
	p.url = url
	hook := p.onNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) Title(ctx context.Context) (string, error) {
	if err := p.record("title"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	if err := p.record("url"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if err := p.record("html"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *FakePage) VisibleText(ctx context.Context) (string, error) {
	if err := p.record("text"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text, nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	if err := p.record("evaluate"); err != nil {
		return err
	}
	p.mu.Lock()
	fn := p.evalFunc
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(script, out)
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.record("wait:" + selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("waiting for %q: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	visible := p.visible[selector]
	hook := p.onClick[selector]
	p.mu.Unlock()
	if !visible {
		return fmt.Errorf("click %q: element not visible", selector)
	}
	if err := p.record("click:" + selector); err != nil {
		return err
	}
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	present := p.present[selector]
	p.mu.Unlock()
	if !present {
		return fmt.Errorf("fill %q: no such element", selector)
	}
	if err := p.record("fill:" + selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[selector] = value
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Check(ctx context.Context, selector string) error {
	p.mu.Lock()
	present := p.present[selector]
	p.mu.Unlock()
	if !present {
		return fmt.Errorf("check %q: no such element", selector)
	}
	if err := p.record("check:" + selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.checked[selector] = true
	p.mu.Unlock()
	return nil
}

func (p *FakePage) SelectOption(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	present := p.present[selector]
	p.mu.Unlock()
	if !present {
		return fmt.Errorf("select %q: no such element", selector)
	}
	if err := p.record("select:" + selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[selector] = value
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.record("screenshot"); err != nil {
		return nil, err
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return p.ScreenshotData, nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
