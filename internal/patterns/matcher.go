// Package patterns recognizes common unsubscribe page layouts and acts on them
// without involving the classifier.
package patterns

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/internal/browser"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// Match describes what a strategy did to the page.
type Match struct {
	Strategy string
	Selector string
	Detail   string
}

// Strategy is one known unsubscribe idiom. Attempt returns (nil, nil) when the
// idiom is not present; an error means the strategy could not finish and the
// next one should be tried.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, page browser.Page) (*Match, error)
}

// Matcher evaluates strategies in priority order and stops at the first match.
type Matcher struct {
	strategies []Strategy
	settle     time.Duration
	logger     *zap.Logger
}

// NewMatcher wires the three built-in strategies: direct selectors, opt-out
// checkbox plus submit, and generic form submission.
func NewMatcher(probeCfg config.ProbeConfig, timeouts config.TimeoutConfig, logger *zap.Logger) *Matcher {
	logger = logger.Named("patterns")
	return NewMatcherWith(timeouts.PatternSettle, logger,
		NewDirectStrategy(probeCfg.DirectSelectors, timeouts.VisibilityProbe),
		NewCheckboxStrategy(probeCfg.CheckboxKeywords, timeouts.VisibilityProbe),
		NewFormStrategy(timeouts.VisibilityProbe),
	)
}

// NewMatcherWith builds a matcher over an explicit strategy list.
func NewMatcherWith(settle time.Duration, logger *zap.Logger, strategies ...Strategy) *Matcher {
	return &Matcher{strategies: strategies, settle: settle, logger: logger}
}

// Strategies returns the strategy names in evaluation order.
func (m *Matcher) Strategies() []string {
	names := make([]string, len(m.strategies))
	for i, s := range m.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run tries each strategy in turn. A nil match with a nil error means no
// pattern applied, which is the normal cue for classifier fallback. After a
// match the page is given the settle window to process the submission.
func (m *Matcher) Run(ctx context.Context, page browser.Page) (*Match, error) {
	for _, s := range m.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		match, err := s.Attempt(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Debug("Strategy failed, trying next.", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if match == nil {
			continue
		}

		match.Strategy = s.Name()
		m.logger.Info("Unsubscribe pattern matched.",
			zap.String("strategy", match.Strategy),
			zap.String("selector", match.Selector),
			zap.String("detail", match.Detail),
		)
		if err := browser.Sleep(ctx, m.settle); err != nil {
			return match, err
		}
		return match, nil
	}
	return nil, nil
}
