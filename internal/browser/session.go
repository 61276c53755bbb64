// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/internal/browser/stealth"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// Browser is a handle to a launched Chrome process.
type Browser struct {
	ID         string
	LaunchedAt time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// launchFunc starts a browser. It is swapped out in tests.
type launchFunc func(ctx context.Context) (*Browser, error)

// Session owns the single shared browser process. Acquire and Release are
// idempotent and safe for concurrent use; pages opened from it are
// independent tabs with their own browser context (cookies, storage).
type Session struct {
	cfg      config.BrowserConfig
	timeouts config.TimeoutConfig
	persona  stealth.Persona
	logger   *zap.Logger
	launch   launchFunc

	mu      sync.Mutex
	browser *Browser
}

// NewSession creates a session; the browser is launched lazily on first use.
func NewSession(cfg config.BrowserConfig, timeouts config.TimeoutConfig, logger *zap.Logger) *Session {
	s := &Session{
		cfg:      cfg,
		timeouts: timeouts,
		persona:  personaFromConfig(cfg),
		logger:   logger.Named("browser_session"),
	}
	s.launch = s.launchChrome
	return s
}

func personaFromConfig(cfg config.BrowserConfig) stealth.Persona {
	p := stealth.DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		p.Width, p.Height = cfg.ViewportWidth, cfg.ViewportHeight
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
	}
	return p
}

// allocatorOptions translates the config into chromedp allocator options.
func allocatorOptions(cfg config.BrowserConfig, persona stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(persona.UserAgent),
		chromedp.WindowSize(persona.Width, persona.Height),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.ExtraArgs {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func (s *Session) launchChrome(ctx context.Context) (*Browser, error) {
	// The browser outlives the request that triggered the launch, so it hangs
	// off the background context and is only torn down by Release.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(s.cfg, s.persona)...)
	browserLog := s.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(browserLog.Debugf),
		chromedp.WithErrorf(browserLog.Debugf),
	)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(browserCtx) }()

	select {
	case err := <-done:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	return &Browser{
		ID:          uuid.NewString(),
		LaunchedAt:  time.Now(),
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

// Acquire returns the shared browser, launching it on first use. Repeated
// calls return the same instance until Release is called.
func (s *Session) Acquire(ctx context.Context) (*Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	s.logger.Info("Launching shared browser.", zap.Bool("headless", s.cfg.Headless))
	b, err := s.launch(ctx)
	if err != nil {
		s.logger.Error("Browser launch failed.", zap.Error(err))
		return nil, err
	}
	s.browser = b
	s.logger.Debug("Browser ready.", zap.String("browser_id", b.ID))
	return b, nil
}

// Launch starts the shared browser if it is not running yet.
func (s *Session) Launch(ctx context.Context) error {
	_, err := s.Acquire(ctx)
	return err
}

// Release closes the shared browser. It is a no-op when nothing is running.
func (s *Session) Release() {
	s.mu.Lock()
	b := s.browser
	s.browser = nil
	s.mu.Unlock()

	if b == nil {
		return
	}

	s.logger.Info("Closing shared browser.", zap.String("browser_id", b.ID))
	if b.ctx != nil {
		if err := chromedp.Cancel(b.ctx); err != nil {
			s.logger.Debug("Graceful browser close failed.", zap.Error(err))
		}
	}
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// Active reports whether a browser is currently running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil
}

// NewIsolatedPage opens a fresh tab in its own browser context with the
// stealth persona applied.
func (s *Session) NewIsolatedPage(ctx context.Context, b *Browser) (Page, error) {
	if b == nil || b.ctx == nil {
		return nil, fmt.Errorf("browser is not running")
	}

	tabCtx, tabCancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	// The first Run creates the target; it must use the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	tab := newTab(tabCtx, tabCancel, s.timeouts.PageDefault, s.cfg.ScreenshotQual, s.logger)
	if err := tab.run(ctx, stealth.Apply(s.persona, s.logger)); err != nil {
		_ = tab.Close()
		return nil, fmt.Errorf("failed to configure page: %w", err)
	}
	return tab, nil
}

// OpenPage acquires the browser if needed and opens an isolated page on it.
func (s *Session) OpenPage(ctx context.Context) (Page, error) {
	b, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s.NewIsolatedPage(ctx, b)
}
