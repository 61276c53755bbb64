package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics presented to visited sites.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
}

// DefaultPersona is a desktop Chrome on macOS with a large viewport.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:  "MacIntel",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/New_York",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
}

// AcceptLanguage renders the persona's languages as an Accept-Language value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := []string{p.Languages[0]}
	for i, lang := range p.Languages[1:] {
		q := 0.9 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// personaScript exposes the persona to evasions.js before it runs.
func personaScript(p Persona) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"platform":  p.Platform,
		"languages": p.Languages,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("window.__sweeperPersona = %s;", payload), nil
}

// Apply builds the CDP actions that make a headless tab look like a regular
// desktop browser. It must run on a tab before its first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.Int("width", p.Width),
		zap.Int("height", p.Height),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage()).
			WithPlatform(p.Platform),
		chromedp.ActionFunc(func(ctx context.Context) error {
			prelude, err := personaScript(p)
			if err != nil {
				return fmt.Errorf("failed to encode persona: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(prelude).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject persona: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}),
	}

	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1, false))
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	return tasks
}
