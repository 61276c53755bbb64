// Package probe reads a live page: bot challenges, success confirmations and
// a structural snapshot for the content classifier.
package probe

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

//go:embed snapshot.js
var snapshotScript string

// Probe applies the configured text heuristics to a page. It never mutates
// the page.
type Probe struct {
	challengeTitles  []string
	challengeMarkers []string
	successPhrases   []string
	logger           *zap.Logger
}

// New builds a probe from config. Success phrases are lower-cased once here.
func New(cfg config.ProbeConfig, logger *zap.Logger) *Probe {
	phrases := make([]string, 0, len(cfg.SuccessPhrases))
	for _, p := range cfg.SuccessPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Probe{
		challengeTitles:  cfg.ChallengeTitles,
		challengeMarkers: cfg.ChallengeMarkers,
		successPhrases:   phrases,
		logger:           logger.Named("probe"),
	}
}

// DetectChallenge reports whether the page is a bot-defense interstitial,
// judged by its title and its raw markup.
func (p *Probe) DetectChallenge(ctx context.Context, page browser.Page) (bool, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read page title: %w", err)
	}
	for _, t := range p.challengeTitles {
		if t != "" && strings.Contains(title, t) {
			p.logger.Debug("Challenge title matched.", zap.String("title", title))
			return true, nil
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read page content: %w", err)
	}
	for _, m := range p.challengeMarkers {
		if m != "" && strings.Contains(html, m) {
			p.logger.Debug("Challenge marker matched.", zap.String("marker", m))
			return true, nil
		}
	}
	return false, nil
}

// DetectSuccess scans the lower-cased visible text for a success phrase and
// returns the first one found in configuration order.
func (p *Probe) DetectSuccess(ctx context.Context, page browser.Page) (bool, string, error) {
	text, err := page.VisibleText(ctx)
	if err != nil {
		return false, "", fmt.Errorf("failed to read page text: %w", err)
	}
	phrase := MatchPhrase(text, p.successPhrases)
	return phrase != "", phrase, nil
}

// MatchPhrase returns the first phrase contained in the lower-cased text, or
// the empty string. Phrases are expected in lower case.
func MatchPhrase(text string, phrases []string) string {
	lowered := strings.ToLower(text)
	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			return phrase
		}
	}
	return ""
}

// Snapshot collects the page's interactive elements in a single read-only
// evaluation.
func (p *Probe) Snapshot(ctx context.Context, page browser.Page) (schemas.PageSnapshot, error) {
	var snap schemas.PageSnapshot
	if err := page.Evaluate(ctx, snapshotScript, &snap); err != nil {
		return schemas.PageSnapshot{}, fmt.Errorf("failed to snapshot page: %w", err)
	}
	p.logger.Debug("Captured page snapshot.",
		zap.String("url", snap.URL),
		zap.Int("buttons", len(snap.Buttons)),
		zap.Int("links", len(snap.Links)),
		zap.Int("forms", len(snap.Forms)),
		zap.Int("checkboxes", len(snap.Checkboxes)),
	)
	return snap, nil
}
